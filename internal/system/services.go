package system

import (
	"context"
	"strconv"
	"strings"
)

// ServiceManager controls host daemons.
type ServiceManager interface {
	Restart(ctx context.Context, service string) error
	Reload(ctx context.Context, service string) error
	Status(ctx context.Context, service string) string
	Logs(ctx context.Context, service string, lines int) (string, error)
}

// Systemd drives services through systemctl and journalctl.
type Systemd struct {
	runner Runner
}

// NewSystemd returns a systemd backed ServiceManager.
func NewSystemd(runner Runner) Systemd {
	return Systemd{runner: runner}
}

func (s Systemd) Restart(ctx context.Context, service string) error {
	_, err := s.runner.Run(ctx, Sudo("systemctl", "restart", service))
	return err
}

func (s Systemd) Reload(ctx context.Context, service string) error {
	_, err := s.runner.Run(ctx, Sudo("systemctl", "reload", service))
	return err
}

// Status returns the is-active state. A failed query still reports the
// printed state when there is one.
func (s Systemd) Status(ctx context.Context, service string) string {
	out, err := s.runner.Run(ctx, Cmd("systemctl", "is-active", service))
	state := strings.TrimSpace(out)
	if err != nil && state == "" {
		return "inactive/failed"
	}
	if state == "" {
		return "unknown"
	}
	return state
}

// Logs returns the last lines of the service journal.
func (s Systemd) Logs(ctx context.Context, service string, lines int) (string, error) {
	if lines <= 0 {
		lines = 50
	}
	return s.runner.Run(ctx, Sudo("journalctl", "-xeu", service, "-n", strconv.Itoa(lines), "--no-pager"))
}
