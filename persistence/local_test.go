package persistence

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalBackendStoreOpenRemove(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(filepath.Join(dir, "archive"))
	require.NoError(t, err)

	require.NoError(t, b.Store("container-1.log", bytes.NewReader([]byte("hello world"))))

	r, err := b.Open("container-1.log")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	require.Equal(t, "hello world", string(data))

	require.NoError(t, b.Remove("container-1.log"))
	_, err = b.Open("container-1.log")
	require.Error(t, err)
}

func TestLocalBackendRemoveMissingIsNotError(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, b.Remove("never-existed"))
}

func TestLocalBackendConfinesPathTraversal(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(filepath.Join(dir, "archive"))
	require.NoError(t, err)

	require.NoError(t, b.Store("../escape.log", bytes.NewReader([]byte("x"))))
	// filepath.Base strips any directory components, so the object lands
	// inside the backend's own directory rather than escaping it.
	_, statErr := os.Stat(filepath.Join(dir, "archive", "escape.log"))
	require.NoError(t, statErr)
}
