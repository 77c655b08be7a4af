package fsatomic

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/pulith-dev/pulith/internal/perr"
)

// HardlinkOrCopy publishes src at dst via a hardlink when both paths share a
// device. When they don't, strategy decides: OnCrossDeviceCopy falls back to
// a full copy (still published atomically via rename), and
// OnCrossDeviceError, the zero value, returns a CrossDeviceHardlink error.
// A hardlinked cache entry costs no extra disk; the copy fallback covers
// cross-device staging areas (separate tmpfs, separate volume mounts).
func HardlinkOrCopy(src, dst string, strategy HardlinkStrategy) error {
	err := os.Link(src, dst)
	if err == nil {
		return nil
	}

	if !isCrossDevice(err) {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, dst)
	}

	if strategy == OnCrossDeviceError {
		return perr.NewCrossDeviceHardlink(dst)
	}

	return copyAtomic(src, dst)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}

func copyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, dst)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, dst)
	}

	dir := filepath.Dir(dst)
	tmp := filepath.Join(dir, ".pulith-tmp-"+uuid.NewString())

	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, dst)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, dst)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, dst)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, dst)
	}

	return syncDir(dir)
}
