package fsatomic

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pulith-dev/pulith/internal/perr"
)

// AtomicSymlink creates (or replaces) a symlink at linkPath pointing at
// target. The symlink is built under a temp name first and then renamed
// onto linkPath, so a reader of linkPath never observes a dangling or
// half-created link mid-operation.
func AtomicSymlink(target, linkPath string) error {
	dir := filepath.Dir(linkPath)
	tmp := filepath.Join(dir, ".pulith-tmp-link-"+uuid.NewString())

	if err := os.Symlink(target, tmp); err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, linkPath)
	}

	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, linkPath)
	}

	return syncDir(dir)
}
