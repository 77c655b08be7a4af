package fsatomic

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pulith-dev/pulith/internal/perr"
)

// AtomicWrite writes data to path by first writing a sibling temp file in
// the same directory, fsyncing it, setting its permissions, and only then
// renaming it onto path, after which the directory is fsynced so the
// rename itself survives a crash. A crash or a
// concurrent reader at any point before the rename sees path untouched; a
// crash after the rename sees it fully written. There is no state in
// between observable from outside this function.
func AtomicWrite(path string, data []byte, opts WriteOptions) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, ".pulith-tmp-"+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
	}

	if err := writeAndSync(f, data); err != nil {
		f.Close()
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
	}

	if mode, ok := opts.resolveMode(); ok {
		if err := os.Chmod(tmp, mode); err != nil {
			f.Close()
			os.Remove(tmp)
			return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, path)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, path)
	}

	if err := syncDir(dir); err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, path)
	}

	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// syncDir fsyncs a directory so the rename that published a file (or the
// unlink that removed one) survives a crash. Best-effort on platforms where
// opening a directory for reading isn't meaningful; an error here is
// reported, never silently swallowed, so callers can decide whether durability
// against a crash matters for their use case.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
