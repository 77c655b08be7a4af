package fsatomic

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pulith-dev/pulith/internal/perr"
)

// Workspace is a staging directory where a fetch engine assembles a new
// artifact version before publishing it in one atomic step. Nothing
// written into a Workspace is visible at its eventual destination until
// Commit succeeds; Abort (or Close without a prior Commit) removes it
// entirely, leaving no trace.
type Workspace struct {
	root string

	mu        sync.Mutex
	committed bool
	closed    bool
}

// AllocateWorkspace creates a new staging directory as a sibling of
// destPath, named uniquely so concurrent fetches targeting the same
// destination never collide.
func AllocateWorkspace(destPath string) (*Workspace, error) {
	parent := filepath.Dir(destPath)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, destPath)
	}

	root := filepath.Join(parent, ".pulith-ws-"+uuid.NewString())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, destPath)
	}

	return &Workspace{root: root}, nil
}

// Root returns the workspace's staging directory.
func (w *Workspace) Root() string {
	return w.root
}

// resolve joins rel onto the workspace root, rejecting any path that would
// escape it via ".." segments or an absolute path.
func (w *Workspace) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", perr.NewInvalidState(rel, "path must be relative to the workspace")
	}

	joined := filepath.Join(w.root, rel)
	if joined != w.root && !strings.HasPrefix(joined, w.root+string(filepath.Separator)) {
		return "", perr.NewInvalidState(rel, "path escapes the workspace root")
	}

	return joined, nil
}

// CreateDir creates a single directory at rel within the workspace.
func (w *Workspace) CreateDir(rel string) error {
	path, err := w.resolve(rel)
	if err != nil {
		return err
	}
	return os.Mkdir(path, 0o755)
}

// CreateDirAll creates rel and any missing parents within the workspace.
func (w *Workspace) CreateDirAll(rel string) error {
	path, err := w.resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

// OpenFile opens rel within the workspace for writing, creating parent
// directories as needed.
func (w *Workspace) OpenFile(rel string) (*os.File, error) {
	path, err := w.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
	}
	return os.Create(path)
}

// CreateSizedFile creates rel within the workspace, preallocated to size
// bytes, and returns it open for concurrent offset-based writes (the
// segmented fetcher's use case: several workers hold the same *os.File and
// call WriteAt at disjoint, non-overlapping ranges). Callers are
// responsible for closing the returned file.
func (w *Workspace) CreateSizedFile(rel string, size int64) (*os.File, error) {
	path, err := w.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, path)
	}

	return f, nil
}

// Write writes data to rel within the workspace in one call.
func (w *Workspace) Write(rel string, data []byte) error {
	f, err := w.OpenFile(rel)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, rel)
	}
	return f.Sync()
}

// CopyInto streams r into rel within the workspace.
func (w *Workspace) CopyInto(rel string, r io.Reader) error {
	f, err := w.OpenFile(rel)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, rel)
	}
	return f.Sync()
}

// Commit publishes the workspace's contents at target via ReplaceDir. After
// a successful Commit the workspace is considered closed; a second Commit
// returns an InvalidState error and a later Abort is a no-op. If
// ReplaceDir fails, the staged tree is
// removed (mirroring Abort) before the error is returned, so a failed
// Commit never leaves a workspace directory behind.
func (w *Workspace) Commit(target string, opts ReplaceDirOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.committed || w.closed {
		return perr.NewInvalidState(target, "workspace already committed or aborted")
	}

	if err := ReplaceDir(target, w.root, opts); err != nil {
		w.closed = true
		if rmErr := os.RemoveAll(w.root); rmErr != nil {
			return perr.NewFsAtomicFailed(perr.FsPhaseCleanup, rmErr, w.root)
		}
		return err
	}

	w.committed = true
	return nil
}

// Abort discards the workspace's contents. Idempotent: calling it more than
// once, or after a successful Commit, is harmless.
func (w *Workspace) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.committed {
		return nil
	}
	w.closed = true

	if err := os.RemoveAll(w.root); err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCleanup, err, w.root)
	}
	return nil
}

// Close is an alias for Abort, letting Workspace satisfy io.Closer so a
// defer ws.Close() guards against a fetch that returns early without an
// explicit Commit.
func (w *Workspace) Close() error {
	return w.Abort()
}
