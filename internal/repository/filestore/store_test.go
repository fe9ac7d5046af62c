package filestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "projects.json"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPutGetRemove(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := domain.ProjectRecord{
		ProjectPath: "/srv/site-a",
		DataPath:    "/data/site-a",
		Port:        3000,
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Put(ctx, "site-a", rec))
	got, err := store.Get(ctx, "site-a")
	require.NoError(t, err)
	rec.Name = "site-a"
	assert.Equal(t, rec, got)

	require.NoError(t, store.Remove(ctx, "site-a"))
	_, err = store.Get(ctx, "site-a")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.Remove(ctx, "site-a"), "remove is idempotent")
}

func TestMissingAndCorruptFileReadAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	reg, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, reg)

	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))
	reg, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, reg)

	require.NoError(t, store.Put(ctx, "site-b", domain.ProjectRecord{Port: 3001}))
	reg, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, reg, 1)
}

func TestUpdateErrorLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, "site-a", domain.ProjectRecord{Port: 3000}))
	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Update(ctx, func(reg repository.Registry) error {
		reg["site-b"] = domain.ProjectRecord{Port: 3001}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConcurrentUpdatesAllocateDistinctPorts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			err := store.Update(ctx, func(reg repository.Registry) error {
				reg[name] = domain.ProjectRecord{Port: repository.NextAvailablePort(reg, 3000)}
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	reg, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, reg, 8)
	seen := map[int]bool{}
	for _, rec := range reg {
		assert.False(t, seen[rec.Port], "port %d allocated twice", rec.Port)
		seen[rec.Port] = true
	}
}

func TestUpdateHonorsContextWhileLocked(t *testing.T) {
	store := newTestStore(t)
	unlock, err := store.lock(context.Background(), lockExclusive)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = store.Update(ctx, func(repository.Registry) error { return nil })
	assert.ErrorIs(t, err, repository.ErrLocked)
}
