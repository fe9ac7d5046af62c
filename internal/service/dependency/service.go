// Package dependency makes sure the host binaries a step needs are installed.
package dependency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/splax/peephost/internal/system"
)

// State is the lifecycle of one ensure call.
type State string

const (
	StateUnknown    State = "unknown"
	StateChecking   State = "checking"
	StatePresent    State = "present"
	StateInstalling State = "installing"
	StateFailed     State = "failed"
)

var errStillMissing = errors.New("binary still missing after install")

// Ensurer is the contract other services depend on.
type Ensurer interface {
	Ensure(ctx context.Context, tool string) error
}

// Service probes for tools and installs missing ones through the package
// manager. Present tools are remembered for the cache TTL.
type Service struct {
	runner  system.Runner
	pm      PackageManager
	tools   map[string]Tool
	present *gocache.Cache
	logger  *slog.Logger
}

// New returns a dependency service.
func New(runner system.Runner, pm PackageManager, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Service{
		runner:  runner,
		pm:      pm,
		tools:   Tools,
		present: gocache.New(cacheTTL, 2*cacheTTL),
		logger:  logger,
	}
}

// Check probes tool once. Only a missing executable counts as absent.
func (s *Service) Check(ctx context.Context, tool string) (bool, error) {
	t, ok := s.tools[tool]
	if !ok {
		return false, &Error{Tool: tool, Stage: string(StateUnknown), Err: errors.New("unknown tool")}
	}
	if _, hit := s.present.Get(tool); hit {
		return true, nil
	}
	_, err := s.runner.Run(ctx, system.Cmd(t.Binary, t.probeArgs()...))
	if err != nil && system.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		s.logger.Debug("probe failed but binary exists", "tool", tool, "error", err)
	}
	s.present.SetDefault(tool, struct{}{})
	return true, nil
}

// Ensure installs tool when it is missing and verifies the result.
func (s *Service) Ensure(ctx context.Context, tool string) error {
	s.logger.Debug("checking dependency", "tool", tool, "state", StateChecking)
	present, err := s.Check(ctx, tool)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	t := s.tools[tool]
	s.logger.Info("installing dependency", "tool", tool, "packages", t.Packages, "state", StateInstalling)
	if err := s.install(ctx, t); err != nil {
		s.logger.Error("dependency install failed", "tool", tool, "state", StateFailed, "error", err)
		return &Error{Tool: tool, Packages: t.Packages, Stage: "install", Err: err}
	}

	present, err = s.Check(ctx, tool)
	if err != nil {
		return err
	}
	if !present {
		s.logger.Error("dependency still missing", "tool", tool, "state", StateFailed)
		return &Error{Tool: tool, Packages: t.Packages, Stage: "verify", Err: errStillMissing}
	}
	s.logger.Info("dependency ready", "tool", tool, "state", StatePresent)
	return nil
}

// EnsureAll ensures each tool in order, stopping at the first failure.
func (s *Service) EnsureAll(ctx context.Context, tools ...string) error {
	for _, tool := range tools {
		if err := s.Ensure(ctx, tool); err != nil {
			return err
		}
	}
	return nil
}

// Forget drops cached probe results.
func (s *Service) Forget() {
	s.present.Flush()
}

// Upgrade refreshes the package index, applies pending upgrades and removes
// packages nothing depends on any more. Cached probe results are dropped.
func (s *Service) Upgrade(ctx context.Context) error {
	steps := []struct {
		stage string
		args  []string
	}{
		{"refresh", s.pm.Refresh},
		{"upgrade", s.pm.Upgrade},
		{"autoremove", s.pm.Clean},
	}
	for _, step := range steps {
		s.logger.Info("updating system packages", "stage", step.stage, "manager", s.pm.Name)
		if _, err := s.runner.Run(ctx, system.Sudo(s.pm.Binary, step.args...)); err != nil {
			return &Error{Tool: s.pm.Name, Stage: step.stage, Err: err}
		}
	}
	s.Forget()
	s.logger.Info("system packages up to date", "manager", s.pm.Name)
	return nil
}

func (s *Service) install(ctx context.Context, t Tool) error {
	if _, err := s.runner.Run(ctx, system.Sudo(s.pm.Binary, s.pm.Refresh...)); err != nil {
		return err
	}
	args := append(append([]string{}, s.pm.Install...), t.Packages...)
	_, err := s.runner.Run(ctx, system.Sudo(s.pm.Binary, args...))
	return err
}

var _ Ensurer = (*Service)(nil)
