// Package filestore keeps the project registry in a single JSON file guarded
// by an advisory lock on a sibling .lock file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
)

const (
	lockPollInterval = 25 * time.Millisecond
	lockShared       = unix.LOCK_SH
	lockExclusive    = unix.LOCK_EX
)

// Store implements repository.ProjectStore on top of a JSON file.
type Store struct {
	path     string
	lockPath string
	logger   *slog.Logger
}

// New returns a store backed by path. The file is created on first write.
func New(path string, logger *slog.Logger) *Store {
	return &Store{path: path, lockPath: path + ".lock", logger: logger}
}

// Path returns the registry file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record registered under name.
func (s *Store) Get(ctx context.Context, name string) (domain.ProjectRecord, error) {
	reg, err := s.List(ctx)
	if err != nil {
		return domain.ProjectRecord{}, err
	}
	rec, ok := reg[name]
	if !ok {
		return domain.ProjectRecord{}, fmt.Errorf("project %q: %w", name, repository.ErrNotFound)
	}
	rec.Name = name
	return rec, nil
}

// Put creates or replaces the record for name.
func (s *Store) Put(ctx context.Context, name string, record domain.ProjectRecord) error {
	return s.Update(ctx, func(reg repository.Registry) error {
		reg[name] = record
		return nil
	})
}

// Remove deletes name. Removing an absent project is not an error.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.Update(ctx, func(reg repository.Registry) error {
		delete(reg, name)
		return nil
	})
}

// List returns every record under a shared lock.
func (s *Store) List(ctx context.Context) (repository.Registry, error) {
	unlock, err := s.lock(ctx, lockShared)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.load(), nil
}

// Update runs fn against the current registry under an exclusive lock and
// writes the result back. Nothing is written when fn returns an error.
func (s *Store) Update(ctx context.Context, fn func(repository.Registry) error) error {
	unlock, err := s.lock(ctx, lockExclusive)
	if err != nil {
		return err
	}
	defer unlock()

	reg := s.load()
	if err := fn(reg); err != nil {
		return err
	}
	return s.save(reg)
}

func (s *Store) lock(ctx context.Context, how int) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open registry lock: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("lock registry: %w", err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w: %v", repository.ErrLocked, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// load reads the registry. A missing or unreadable file is an empty registry.
func (s *Store) load() repository.Registry {
	reg := repository.Registry{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("registry unreadable, treating as empty", "path", s.path, "error", err)
		}
		return reg
	}
	if len(data) == 0 {
		return reg
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		s.logger.Warn("registry corrupt, treating as empty", "path", s.path, "error", err)
		return repository.Registry{}
	}
	if reg == nil {
		reg = repository.Registry{}
	}
	return reg
}

func (s *Store) save(reg repository.Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".projects-*.json")
	if err != nil {
		return fmt.Errorf("stage registry: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

var _ repository.ProjectStore = (*Store)(nil)
