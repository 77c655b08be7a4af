package fetch

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pulith-dev/pulith/internal/fsatomic"
	"github.com/pulith-dev/pulith/internal/perr"
)

// DownloadCheckpoint is the persisted state a ResumableFetcher needs to
// restart from an intermediate offset. It is serialized to JSON and
// atomic-written to a sibling ".checkpoint" file next to the partial
// ".part" file, generalized from tdm's repository.BboltRepository
// marshal/unmarshal cycle but keyed by the destination path rather than a
// bbolt bucket key, since persistence here lives beside the partial file
// rather than in a database.
type DownloadCheckpoint struct {
	URL             string            `json:"url"`
	TotalSize       int64             `json:"totalSize"`
	BytesCompleted  int64             `json:"bytesCompleted"`
	SegmentProgress map[int]int64     `json:"segmentProgress,omitempty"`
	PartialPath     string            `json:"partialPath"`
	HasherState     []byte            `json:"hasherState,omitempty"`
	ETag            string            `json:"etag,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	Headers         map[string]string `json:"headers,omitempty"`
}

// Valid reports the checkpoint's own invariant: completed bytes never
// exceed the total.
func (c DownloadCheckpoint) Valid() bool {
	return c.BytesCompleted >= 0 && (c.TotalSize == 0 || c.BytesCompleted <= c.TotalSize)
}

// partPath and checkpointPath derive the sibling paths used to persist
// resumable state for a given destination.
func partPath(dest string) string       { return dest + ".part" }
func checkpointPath(dest string) string { return dest + ".checkpoint" }

// loadCheckpoint reads and parses a checkpoint sibling to dest, returning
// (zero, false, nil) if none exists.
func loadCheckpoint(dest string) (DownloadCheckpoint, bool, error) {
	b, err := os.ReadFile(checkpointPath(dest))
	if err != nil {
		if os.IsNotExist(err) {
			return DownloadCheckpoint{}, false, nil
		}
		return DownloadCheckpoint{}, false, perr.NewIO(err, checkpointPath(dest))
	}

	var cp DownloadCheckpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return DownloadCheckpoint{}, false, perr.NewInvalidState(checkpointPath(dest), "corrupt checkpoint: "+err.Error())
	}

	if !cp.Valid() {
		return DownloadCheckpoint{}, false, perr.NewInvalidState(checkpointPath(dest), "inconsistent checkpoint: completed exceeds total")
	}

	return cp, true, nil
}

// saveCheckpoint atomic-writes cp to its sibling .checkpoint file.
func saveCheckpoint(dest string, cp DownloadCheckpoint) error {
	cp.UpdatedAt = time.Now()

	b, err := json.Marshal(cp)
	if err != nil {
		return perr.NewInvalidState(checkpointPath(dest), "failed to marshal checkpoint: "+err.Error())
	}

	return fsatomic.AtomicWrite(checkpointPath(dest), b, fsatomic.WriteOptions{})
}

// removeCheckpoint deletes the checkpoint file for dest; the partial file
// is left alone. A missing checkpoint is not an error.
func removeCheckpoint(dest string) error {
	if err := os.Remove(checkpointPath(dest)); err != nil && !os.IsNotExist(err) {
		return perr.NewIO(err, checkpointPath(dest))
	}
	return nil
}
