package fetch

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pulith-dev/pulith/internal/fsatomic"
	"github.com/pulith-dev/pulith/internal/perr"
	"github.com/pulith-dev/pulith/internal/progress"
	"github.com/pulith-dev/pulith/internal/ratelimit"
	"github.com/pulith-dev/pulith/internal/transport"
)

// ResumableFetcher implements the checkpointed strategy: a sibling ".part"
// file accumulates bytes across attempts (and process restarts), with a
// sibling ".checkpoint" recording progress so a second attempt can issue
// Range: bytes=completed- and append rather than restart from zero. Only
// one instance may hold a given partial at a time, enforced by
// fsatomic.Transaction's advisory file lock. Generalized from the
// tdm's chunk.Chunk resume-by-offset behavior, adapted from per-chunk
// resume to whole-file resume since this strategy (unlike
// SegmentedFetcher) targets servers that may not support concurrent
// ranges but do support a single resumed range.
type ResumableFetcher struct {
	Client transport.Client
	Bucket ratelimit.Bucket

	// CheckpointEvery throttles how often the checkpoint file is
	// rewritten, by chunk count, instead of on every write.
	CheckpointEvery int
}

// NewResumableFetcher builds a ResumableFetcher with a checkpoint cadence
// of every 32 chunks.
func NewResumableFetcher(client transport.Client, bucket ratelimit.Bucket) *ResumableFetcher {
	return &ResumableFetcher{Client: client, Bucket: bucket, CheckpointEvery: 32}
}

// Fetch downloads url to dest, resuming from a prior checkpoint when one
// exists and is still consistent with the server's current metadata.
func (f *ResumableFetcher) Fetch(ctx context.Context, url, dest string, opts FetchOptions) (FetchReport, error) {
	start := time.Now()

	lock, err := fsatomic.OpenTransaction(dest + ".lock")
	if err != nil {
		return FetchReport{}, err
	}
	defer lock.Close()

	meta, err := f.Client.Head(ctx, url, opts.Headers)
	if err != nil {
		return FetchReport{}, err
	}

	cp, resuming, err := loadCheckpoint(dest)
	if err != nil {
		return FetchReport{}, err
	}

	if resuming && !checkpointMatches(cp, url, meta) {
		resuming = false
		cp = DownloadCheckpoint{}
	}

	part := partPath(dest)
	var completed int64
	if resuming {
		completed = cp.BytesCompleted
	} else {
		cp = DownloadCheckpoint{URL: url, TotalSize: meta.TotalBytes, PartialPath: part, ETag: meta.ETag}
		os.Remove(part)
	}

	reporter := progress.NewReporter(meta.TotalBytes)
	reporter.SetPhase(progress.PhaseDownloading)
	if resuming {
		reporter.RecordReconnect()
	}
	emitProgress(reporter, opts.Progress)

	file, err := os.OpenFile(part, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return FetchReport{}, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, part)
	}
	defer file.Close()

	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if completed > 0 {
		headers["Range"] = "bytes=" + strconv.FormatInt(completed, 10) + "-"
	}

	body, _, err := f.Client.Get(ctx, url, headers)
	if err != nil {
		return FetchReport{}, err
	}
	defer body.Close()

	var reader io.Reader = body
	if bucket := effectiveBucket(f.Bucket, opts.BandwidthCapBPS); bucket != nil {
		reader = ratelimit.NewThrottledReader(ctx, reader, bucket)
	}

	if _, err := file.Seek(completed, io.SeekStart); err != nil {
		return FetchReport{}, perr.NewIO(err, part)
	}

	buf := make([]byte, opts.chunkSize())
	chunksSinceCheckpoint := 0

	for {
		select {
		case <-ctx.Done():
			return FetchReport{}, ctx.Err()
		default:
		}

		n, rerr := reader.Read(buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				return FetchReport{}, perr.NewFsAtomicFailed(perr.FsPhaseCopy, werr, part)
			}
			completed += int64(n)
			reporter.AddBytes(int64(n), url, -1)

			chunksSinceCheckpoint++
			if chunksSinceCheckpoint >= f.CheckpointEvery {
				cp.BytesCompleted = completed
				if err := saveCheckpoint(dest, cp); err != nil {
					return FetchReport{}, err
				}
				chunksSinceCheckpoint = 0
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			cp.BytesCompleted = completed
			if serr := saveCheckpoint(dest, cp); serr != nil {
				return FetchReport{}, serr
			}
			return FetchReport{}, classifyReadErr(rerr, url)
		}
	}

	if err := file.Sync(); err != nil {
		return FetchReport{}, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, part)
	}

	reporter.SetPhase(progress.PhaseVerifying)
	emitProgress(reporter, opts.Progress)

	digest, err := verifyStagedFile(file, opts)
	if err != nil {
		cp.BytesCompleted = completed
		saveCheckpoint(dest, cp)
		return FetchReport{}, err
	}

	reporter.SetPhase(progress.PhaseCommitting)
	emitProgress(reporter, opts.Progress)

	if err := file.Close(); err != nil {
		return FetchReport{}, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, part)
	}

	if err := os.Rename(part, dest); err != nil {
		return FetchReport{}, perr.NewFsAtomicFailed(perr.FsPhaseRename, err, dest)
	}

	if err := removeCheckpoint(dest); err != nil {
		return FetchReport{}, err
	}

	reporter.SetPhase(progress.PhaseCompleted)
	emitProgress(reporter, opts.Progress)

	return report(reporter, dest, completed, digest, []SourceAttempt{{URL: url, Segment: -1, Outcome: OutcomeSucceeded, Attempts: 1, Elapsed: time.Since(start)}}, time.Since(start)), nil
}

// checkpointMatches reports whether a loaded checkpoint is still
// consistent with the server's current metadata for url: the URL and
// known size must agree, and if both sides know an ETag, it must match
// too.
func checkpointMatches(cp DownloadCheckpoint, url string, meta transport.Meta) bool {
	if cp.URL != url {
		return false
	}
	if meta.TotalBytes > 0 && cp.TotalSize > 0 && cp.TotalSize != meta.TotalBytes {
		return false
	}
	if cp.ETag != "" && meta.ETag != "" && cp.ETag != meta.ETag {
		return false
	}
	return true
}
