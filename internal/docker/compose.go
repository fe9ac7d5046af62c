package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/splax/peephost/internal/system"
)

// ComposeFile is the file name compose stacks are written to.
const ComposeFile = "docker-compose.yml"

var (
	// ErrNoComposeFile is returned when a directory holds no compose stack.
	ErrNoComposeFile = errors.New("docker: no compose file")
	// ErrNotFound is returned when a named container does not exist.
	ErrNotFound = errors.New("docker: container not found")
)

// Compose runs docker compose for a directory, retrying with elevation when
// the unprivileged attempt fails.
type Compose struct {
	runner system.Runner
	logger *slog.Logger
}

// NewCompose returns a compose driver.
func NewCompose(runner system.Runner, logger *slog.Logger) *Compose {
	return &Compose{runner: runner, logger: logger}
}

// Up starts the stack in dir detached.
func (c *Compose) Up(ctx context.Context, dir string) error {
	return c.run(ctx, dir, true, "up", "-d")
}

// Down stops the stack in dir and removes its volumes. A directory without
// a compose file returns ErrNoComposeFile.
func (c *Compose) Down(ctx context.Context, dir string) error {
	return c.run(ctx, dir, false, "down", "-v")
}

func (c *Compose) run(ctx context.Context, dir string, onlyOnPermission bool, args ...string) error {
	if _, err := os.Stat(filepath.Join(dir, ComposeFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", dir, ErrNoComposeFile)
		}
		return fmt.Errorf("stat compose file: %w", err)
	}
	cmd := system.Command{Name: "docker", Args: append([]string{"compose"}, args...), Dir: dir}
	_, err := c.runner.Run(ctx, cmd)
	if err == nil {
		return nil
	}
	if onlyOnPermission && !system.IsPermissionDenied(err) {
		return fmt.Errorf("docker compose %s: %w", args[0], err)
	}
	c.logger.Warn("docker compose failed, retrying with elevation", "dir", dir, "action", args[0], "error", err)
	cmd.Privileged = true
	if _, err := c.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("docker compose %s: %w", args[0], err)
	}
	return nil
}
