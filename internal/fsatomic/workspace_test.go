package fsatomic_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulith-dev/pulith/internal/fsatomic"
)

func TestWorkspaceCommitPublishesAtTarget(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "versions", "1.2.3")

	ws, err := fsatomic.AllocateWorkspace(target)
	require.NoError(t, err)

	require.NoError(t, ws.Write("bin/tool", []byte("binary content")))
	require.NoError(t, ws.CreateDirAll("share/doc"))

	require.NoError(t, ws.Commit(target, fsatomic.ReplaceDirOptions{}))

	got, err := os.ReadFile(filepath.Join(target, "bin", "tool"))
	require.NoError(t, err)
	require.Equal(t, "binary content", string(got))

	info, err := os.Stat(filepath.Join(target, "share", "doc"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestWorkspaceNeverVisibleBeforeCommit(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "versions", "1.2.3")

	ws, err := fsatomic.AllocateWorkspace(target)
	require.NoError(t, err)
	require.NoError(t, ws.Write("bin/tool", []byte("binary content")))

	_, err = os.Stat(target)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, ws.Commit(target, fsatomic.ReplaceDirOptions{}))
}

func TestWorkspaceAbortRemovesStagingDir(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "versions", "1.2.3")

	ws, err := fsatomic.AllocateWorkspace(target)
	require.NoError(t, err)
	require.NoError(t, ws.Write("bin/tool", []byte("content")))

	root := ws.Root()
	require.NoError(t, ws.Abort())

	_, err = os.Stat(root)
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(target)
	require.True(t, os.IsNotExist(err))
}

func TestWorkspaceCloseAfterCommitIsNoop(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "v1")

	ws, err := fsatomic.AllocateWorkspace(target)
	require.NoError(t, err)
	require.NoError(t, ws.Write("file", []byte("x")))
	require.NoError(t, ws.Commit(target, fsatomic.ReplaceDirOptions{}))

	require.NoError(t, ws.Close())

	got, err := os.ReadFile(filepath.Join(target, "file"))
	require.NoError(t, err)
	require.Equal(t, "x", string(got))
}

func TestWorkspaceRejectsPathEscape(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "v1")

	ws, err := fsatomic.AllocateWorkspace(target)
	require.NoError(t, err)
	defer ws.Abort()

	_, err = ws.OpenFile("../../etc/passwd")
	require.Error(t, err)
}

func TestWorkspaceCommitFailureRemovesStagingDir(t *testing.T) {
	base := t.TempDir()
	// A path component past NAME_MAX makes every rename/stat syscall
	// ReplaceDir tries fail deterministically, regardless of permissions.
	target := filepath.Join(base, strings.Repeat("x", 300))

	ws, err := fsatomic.AllocateWorkspace(target)
	require.NoError(t, err)
	require.NoError(t, ws.Write("file", []byte("content")))

	root := ws.Root()

	err = ws.Commit(target, fsatomic.ReplaceDirOptions{MaxRetries: 1, BaseDelay: time.Millisecond})
	require.Error(t, err)

	_, err = os.Stat(root)
	require.True(t, os.IsNotExist(err), "staging dir must be removed after a failed Commit")

	// Stat on the over-long target name reports ENAMETOOLONG rather than
	// not-exist, so check instead that nothing at all was left in base.
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Empty(t, entries, "no target, staging or stale entry may remain")
}

func TestWorkspaceCommitReplacesExistingTarget(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "current")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "old.txt"), []byte("old"), 0o644))

	ws, err := fsatomic.AllocateWorkspace(target)
	require.NoError(t, err)
	require.NoError(t, ws.Write("new.txt", []byte("new")))

	require.NoError(t, ws.Commit(target, fsatomic.ReplaceDirOptions{}))

	_, err = os.Stat(filepath.Join(target, "old.txt"))
	require.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(filepath.Join(target, "new.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
}
