package localstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watchtower-nvr/core/objectstore/localstore"
)

func TestPutAndSizeOf(t *testing.T) {
	dir := t.TempDir()
	store, err := localstore.New(dir, nil)
	require.NoError(t, err)

	ref, err := store.Put("snapshots/identity-1.jpg", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "snapshots/identity-1.jpg", ref)

	size, err := store.SizeOf("snapshots/identity-1.jpg")
	require.NoError(t, err)
	require.EqualValues(t, 5, size)

	require.FileExists(t, filepath.Join(dir, "snapshots", "identity-1.jpg"))
}

func TestOpenForAppendStreamsWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := localstore.New(dir, nil)
	require.NoError(t, err)

	w, err := store.OpenForAppend("recordings/2026/08/06/cam-1/seg.avi")
	require.NoError(t, err)
	_, err = w.Write([]byte("chunk-1"))
	require.NoError(t, err)
	_, err = w.Write([]byte("chunk-2"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	full := filepath.Join(dir, "recordings", "2026", "08", "06", "cam-1", "seg.avi")
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	require.Equal(t, "chunk-1chunk-2", string(data))
}

func TestResolvePathCreatesParentDirWithoutFile(t *testing.T) {
	dir := t.TempDir()
	store, err := localstore.New(dir, nil)
	require.NoError(t, err)

	path, err := store.ResolvePath("recordings/2026/08/06/cam-1/seg.avi")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "recordings", "2026", "08", "06", "cam-1", "seg.avi"), path)
	require.DirExists(t, filepath.Dir(path))
	require.NoFileExists(t, path)
}

func TestDeleteMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	store, err := localstore.New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Delete("snapshots/missing.jpg"))
}

func TestResolveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := localstore.New(dir, nil)
	require.NoError(t, err)

	_, err = store.Put("../../etc/passwd", []byte("x"))
	require.Error(t, err)
}
