package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForChange(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func expectQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Changes():
		t.Fatal("unexpected change notification")
	case <-time.After(2 * debounceInterval):
	}
}

func TestWatcherSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relink.toml")
	require.NoError(t, os.WriteFile(path, []byte("[general]\n"), 0o600))

	w, err := New(context.Background(), path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[general]\nlinger_links = true\n"), 0o600))
	waitForChange(t, w)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relink.toml")
	require.NoError(t, os.WriteFile(path, []byte("a = 1\n"), 0o600))

	w, err := New(context.Background(), path)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("a = 1\n"), 0o600))
	}
	waitForChange(t, w)
	expectQuiet(t, w)
}

func TestWatcherSignalsOnAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relink.toml")
	require.NoError(t, os.WriteFile(path, []byte("a = 1\n"), 0o600))

	w, err := New(context.Background(), path)
	require.NoError(t, err)
	defer w.Close()

	// Editors write a temp file and rename it over the original.
	tmp := filepath.Join(dir, ".relink.toml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("a = 2\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	waitForChange(t, w)
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relink.toml")
	require.NoError(t, os.WriteFile(path, []byte("a = 1\n"), 0o600))

	w, err := New(context.Background(), path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("b = 2\n"), 0o600))
	expectQuiet(t, w)
}

func TestWatcherCloseStops(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relink.toml")
	require.NoError(t, os.WriteFile(path, []byte("a = 1\n"), 0o600))

	w, err := New(context.Background(), path)
	require.NoError(t, err)

	w.Close() // must not hang or panic
}

func TestWatcherMissingDirectoryFails(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "nope", "relink.toml"))
	require.Error(t, err)
}
