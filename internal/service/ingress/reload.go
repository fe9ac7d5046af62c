package ingress

import (
	"context"
	"fmt"
	"strings"

	"github.com/splax/peephost/internal/system"
)

// Reloader applies a validated nginx configuration.
type Reloader interface {
	Reload(ctx context.Context) error
}

type systemdReloader struct {
	services system.ServiceManager
}

// NewSystemdReloader reloads the host nginx unit.
func NewSystemdReloader(services system.ServiceManager) Reloader {
	return systemdReloader{services: services}
}

func (r systemdReloader) Reload(ctx context.Context) error {
	return r.services.Reload(ctx, "nginx")
}

type commandReloader struct {
	runner system.Runner
	cmd    system.Command
}

// NewCommandReloader runs a configured reload command line such as
// "sudo nginx -s reload".
func NewCommandReloader(runner system.Runner, line string) (Reloader, error) {
	cmd, err := system.ParseCommand(line)
	if err != nil {
		return nil, fmt.Errorf("parse reload command: %w", err)
	}
	return commandReloader{runner: runner, cmd: cmd}, nil
}

func (r commandReloader) Reload(ctx context.Context) error {
	_, err := r.runner.Run(ctx, r.cmd)
	return err
}

// signaler is satisfied by *docker.Client.
type signaler interface {
	Signal(ctx context.Context, name, sig string) error
}

// dockerReloader triggers nginx reloads by signalling a Docker container.
type dockerReloader struct {
	client    signaler
	container string
}

// NewDockerReloader sends SIGHUP to the nginx container.
func NewDockerReloader(client signaler, container string) (Reloader, error) {
	container = strings.TrimSpace(container)
	if container == "" {
		return nil, fmt.Errorf("container name required")
	}
	return &dockerReloader{client: client, container: container}, nil
}

func (r *dockerReloader) Reload(ctx context.Context) error {
	if err := r.client.Signal(ctx, r.container, "HUP"); err != nil {
		return fmt.Errorf("reload nginx container: %w", err)
	}
	return nil
}
