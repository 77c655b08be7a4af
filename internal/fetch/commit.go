package fetch

import (
	"os"
	"path/filepath"

	"github.com/pulith-dev/pulith/internal/fsatomic"
	"github.com/pulith-dev/pulith/internal/perr"
)

// stagingFileName is the fixed relative path every strategy writes the
// downloaded artifact to within its workspace before commit.
const stagingFileName = "artifact"

// commitFile publishes the file staged at ws's stagingFileName onto dest.
// A Workspace's own Commit method always performs a directory-level
// ReplaceDir (destinations are modeled as directory trees for multi-file
// artifacts); a fetch's destination is a single file, so this helper
// renames the staged file directly onto dest — still atomic,
// because the workspace is allocated as a sibling of dest and therefore on
// the same filesystem — and then discards the now-empty workspace
// directory. Either dest ends up with the new bytes, or it is untouched;
// there is no observable in-between state.
func commitFile(ws *fsatomic.Workspace, dest string) error {
	staged := filepath.Join(ws.Root(), stagingFileName)

	if err := os.Rename(staged, dest); err != nil {
		ws.Abort()
		return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, dest)
	}

	return ws.Abort()
}
