// Package fsatomic implements transactional filesystem primitives: atomic
// file/symlink replacement, hardlink-or-copy, directory replacement,
// staging workspaces, and interprocess-locked transactions. Every
// operation here honors one invariant above all others: observers never
// see a destination in a partial state, and a failed operation leaves the
// destination byte-identical to how it found it. Generalized from the
// tdm's internal/filesystem.OSFileSystem, which only covered plain
// (non-atomic) file operations.
package fsatomic

import (
	"os"
	"time"
)

// PermissionMode selects how AtomicWrite sets permissions on the new file
// before the rename that publishes it.
type PermissionMode int

const (
	// PermInherit leaves whatever mode the temp file was created with
	// (governed by the process umask).
	PermInherit PermissionMode = iota
	PermReadOnly
	PermExecutable
	PermReadWrite
	PermDirectory
	// PermCustom uses WriteOptions.CustomMode verbatim.
	PermCustom
)

// WriteOptions configures AtomicWrite.
type WriteOptions struct {
	Mode       PermissionMode
	CustomMode os.FileMode
}

func (o WriteOptions) resolveMode() (os.FileMode, bool) {
	switch o.Mode {
	case PermReadOnly:
		return 0o444, true
	case PermExecutable:
		return 0o755, true
	case PermReadWrite:
		return 0o644, true
	case PermDirectory:
		return 0o755, true
	case PermCustom:
		return o.CustomMode, true
	default:
		return 0, false
	}
}

// HardlinkStrategy governs HardlinkOrCopy's behavior when the source and
// destination live on different filesystems.
type HardlinkStrategy int

const (
	// OnCrossDeviceError returns CrossDeviceHardlink instead of falling
	// back to a copy.
	OnCrossDeviceError HardlinkStrategy = iota
	// OnCrossDeviceCopy falls back to a full copy.
	OnCrossDeviceCopy
)

// ReplaceDirOptions configures ReplaceDir's retry-on-locked-file behavior.
type ReplaceDirOptions struct {
	// MaxRetries bounds the exponential backoff retry loop. Zero means
	// use the default of 64, the Windows-focused locked-file retry budget
	// generalized to every platform.
	MaxRetries int
	// BaseDelay is the first retry delay; it doubles every attempt.
	BaseDelay time.Duration
}

func (o ReplaceDirOptions) withDefaults() ReplaceDirOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 64
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 8 * time.Millisecond
	}
	return o
}
