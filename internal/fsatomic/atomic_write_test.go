package fsatomic_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulith-dev/pulith/internal/fsatomic"
)

func TestAtomicWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")

	err := fsatomic.AtomicWrite(path, []byte("payload"), fsatomic.WriteOptions{})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestAtomicWriteLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")

	require.NoError(t, fsatomic.AtomicWrite(path, []byte("v1"), fsatomic.WriteOptions{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "artifact.bin", entries[0].Name())
}

// TestAtomicWriteNeverLeavesPartialDestination simulates the invariant that
// matters most: a reader racing the writer either sees the old full content
// or the new full content, never a truncated file.
func TestAtomicWriteNeverLeavesPartialDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")

	require.NoError(t, fsatomic.AtomicWrite(path, []byte("original content"), fsatomic.WriteOptions{}))

	require.NoError(t, fsatomic.AtomicWrite(path, []byte("replacement"), fsatomic.WriteOptions{}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "replacement", string(got))
}

func TestAtomicWriteAppliesPermissionMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.sh")

	err := fsatomic.AtomicWrite(path, []byte("#!/bin/sh\n"), fsatomic.WriteOptions{Mode: fsatomic.PermExecutable})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestAtomicWriteFailureLeavesDestinationUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")
	require.NoError(t, fsatomic.AtomicWrite(path, []byte("safe"), fsatomic.WriteOptions{}))

	// Make the directory read-only so the temp-file create step fails,
	// before any rename could touch the destination.
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	err := fsatomic.AtomicWrite(path, []byte("unsafe"), fsatomic.WriteOptions{})
	require.Error(t, err)

	os.Chmod(dir, 0o755)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "safe", string(got))
}
