package fsatomic

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/pulith-dev/pulith/internal/perr"
)

// Transaction serializes read-modify-write access to a single file across
// processes using an advisory exclusive flock, so two fetch engines sharing
// a cache directory (a checkpoint file, a metadata store) can't interleave
// writes and corrupt it.
type Transaction struct {
	path string
	file *os.File
}

// OpenTransaction opens (creating if necessary) path and blocks until it
// acquires an exclusive advisory lock on it.
func OpenTransaction(path string) (*Transaction, error) {
	for {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
			f.Close()
			return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
		}

		// Execute publishes through a rename, so the file this lock was
		// taken on may have been replaced while waiting; retry on the
		// file now at path until the locked one is still current.
		held, herr := f.Stat()
		cur, cerr := os.Stat(path)
		if herr == nil && cerr == nil && os.SameFile(held, cur) {
			return &Transaction{path: path, file: f}, nil
		}
		f.Close()
		if herr != nil {
			return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, herr, path)
		}
		if cerr != nil && !os.IsNotExist(cerr) {
			return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, cerr, path)
		}
	}
}

// Execute reads the transaction file's current contents, passes them to f,
// and atomically writes back whatever f returns, all while still holding
// the exclusive lock acquired by OpenTransaction. f returning an error
// aborts the write-back and is propagated unchanged.
func (t *Transaction) Execute(f func(current []byte) ([]byte, error)) error {
	if _, err := t.file.Seek(0, 0); err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, t.path)
	}

	info, err := t.file.Stat()
	if err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, t.path)
	}

	current := make([]byte, info.Size())
	if _, err := io.ReadFull(t.file, current); err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, t.path)
	}

	next, err := f(current)
	if err != nil {
		return err
	}

	return AtomicWrite(t.path, next, WriteOptions{})
}

// Close releases the lock and closes the underlying file descriptor.
func (t *Transaction) Close() error {
	unix.Flock(int(t.file.Fd()), unix.LOCK_UN)
	return t.file.Close()
}
