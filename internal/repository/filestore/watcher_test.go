package filestore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/domain"
)

func TestWatcherSignalsOnWrite(t *testing.T) {
	store := newTestStore(t)
	w, err := NewWatcher(store.Path(), 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	changes, err := w.Start()
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, store.Put(context.Background(), "site-a", domain.ProjectRecord{Port: 3000}))
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.json")

	w, err := NewWatcher(path, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	changes, err := w.Start()
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-changes:
		t.Fatal("unrelated file triggered a change")
	case <-time.After(200 * time.Millisecond):
	}
}
