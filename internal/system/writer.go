package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteError reports a failed protected write. Stage is one of "stage",
// "move" or "chown". A "chown" failure means the new content is already at
// Path but not owned by the intended owner.
type WriteError struct {
	Path  string
	Stage string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s (%s): %v", e.Path, e.Stage, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// PrivilegedWriter places files in root-owned locations. Content is staged
// in a scratch directory with the caller's permissions and then moved into
// place with elevation, so a failed move never leaves a partial target.
type PrivilegedWriter struct {
	runner  Runner
	scratch string
	owner   string
}

// NewPrivilegedWriter returns a writer staging files under scratchDir.
func NewPrivilegedWriter(runner Runner, scratchDir string) *PrivilegedWriter {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &PrivilegedWriter{runner: runner, scratch: scratchDir, owner: "root:root"}
}

// WriteProtected writes content to path.
func (w *PrivilegedWriter) WriteProtected(ctx context.Context, path, content string) error {
	if err := os.MkdirAll(w.scratch, 0o755); err != nil {
		return &WriteError{Path: path, Stage: "stage", Err: err}
	}
	staging := filepath.Join(w.scratch, "peephost-"+uuid.NewString())
	if err := os.WriteFile(staging, []byte(content), 0o644); err != nil {
		_ = os.Remove(staging)
		return &WriteError{Path: path, Stage: "stage", Err: err}
	}
	if _, err := w.runner.Run(ctx, Sudo("mv", "-f", staging, path)); err != nil {
		_ = os.Remove(staging)
		return &WriteError{Path: path, Stage: "move", Err: err}
	}
	if _, err := w.runner.Run(ctx, Sudo("chown", w.owner, path)); err != nil {
		return &WriteError{Path: path, Stage: "chown",
			Err: fmt.Errorf("file is in place with the wrong owner, want %s: %w", w.owner, err)}
	}
	return nil
}

// EnsureFile creates an empty protected file when path does not exist.
func (w *PrivilegedWriter) EnsureFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return &WriteError{Path: path, Stage: "stat", Err: err}
	}
	return w.WriteProtected(ctx, path, "")
}

// Symlink points link at target, replacing an existing link.
func (w *PrivilegedWriter) Symlink(ctx context.Context, target, link string) error {
	if _, err := w.runner.Run(ctx, Sudo("ln", "-sf", target, link)); err != nil {
		return &WriteError{Path: link, Stage: "link", Err: err}
	}
	return nil
}

// RemoveProtected deletes paths. Missing paths are ignored.
func (w *PrivilegedWriter) RemoveProtected(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"-f"}, paths...)
	if _, err := w.runner.Run(ctx, Sudo("rm", args...)); err != nil {
		return &WriteError{Path: paths[0], Stage: "remove", Err: err}
	}
	return nil
}

// RemoveTree deletes a directory tree with elevation.
func (w *PrivilegedWriter) RemoveTree(ctx context.Context, path string) error {
	if _, err := w.runner.Run(ctx, Sudo("rm", "-rf", path)); err != nil {
		return &WriteError{Path: path, Stage: "remove", Err: err}
	}
	return nil
}
