package fsatomic

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pulith-dev/pulith/internal/perr"
)

// ReplaceDir atomically makes newDir the contents of target, keeping a
// concurrent reader from ever observing target half-old, half-new. It tries
// unix.Renameat2 with RENAME_EXCHANGE first: that swaps the two directory
// entries in a single syscall, so target becomes newDir and newDir becomes
// whatever target used to hold, which ReplaceDir then removes. When the
// exchange fails (different filesystems, older kernel) it falls back to
// swapViaRemove, retried with exponential backoff on any error since
// target may be transiently open elsewhere (an antivirus scan on Windows;
// here, a reader that hasn't released an fd yet).
func ReplaceDir(target, newDir string, opts ReplaceDirOptions) error {
	opts = opts.withDefaults()

	if _, err := os.Lstat(target); os.IsNotExist(err) {
		if err := os.Rename(newDir, target); err != nil {
			return perr.NewFsAtomicFailed(perr.FsPhaseRename, err, target)
		}
		return nil
	}

	if err := unix.Renameat2(unix.AT_FDCWD, newDir, unix.AT_FDCWD, target, unix.RENAME_EXCHANGE); err == nil {
		return os.RemoveAll(newDir)
	}

	delay := opts.BaseDelay
	var lastErr error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		if err := swapViaRemove(target, newDir); err != nil {
			lastErr = err
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}

	return perr.NewRetryLimitExceeded(lastErr, target, opts.MaxRetries)
}

// swapViaRemove replaces target with newDir non-atomically: rename the old
// target aside, rename newDir onto target, then remove the old tree. There
// is a brief window where target doesn't exist;
// callers that can't tolerate that window should rely on the
// Renameat2(RENAME_EXCHANGE) fast path instead, which this function only
// backs up when that path is unavailable.
func swapViaRemove(target, newDir string) error {
	staleName := target + ".pulith-stale"
	if err := os.Rename(target, staleName); err != nil {
		return err
	}
	if err := os.Rename(newDir, target); err != nil {
		os.Rename(staleName, target)
		return err
	}
	return os.RemoveAll(staleName)
}
