// Package ingress manages nginx reverse proxy sites.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/splax/peephost/internal/service/dependency"
	"github.com/splax/peephost/internal/system"
	"github.com/splax/peephost/internal/templates"
)

// FileWriter is the subset of the privileged writer used for site files.
type FileWriter interface {
	WriteProtected(ctx context.Context, path, content string) error
	Symlink(ctx context.Context, target, link string) error
	RemoveProtected(ctx context.Context, paths ...string) error
}

// ConfigValidationError reports that nginx rejected the configuration.
// The site has already been rolled back.
type ConfigValidationError struct {
	Site   string
	Output string
	Err    error
}

func (e *ConfigValidationError) Error() string {
	msg := "nginx rejected configuration"
	if e.Site != "" {
		msg += " for " + e.Site
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ConfigValidationError) Unwrap() error { return e.Err }

// Config locates the nginx site directories.
type Config struct {
	SitesAvailable string
	SitesEnabled   string
	// Container, when set, names a dockerised nginx used for validation.
	Container string
}

// Service writes, validates and enables proxy sites.
type Service struct {
	runner   system.Runner
	writer   FileWriter
	deps     dependency.Ensurer
	reloader Reloader
	cfg      Config
	logger   *slog.Logger
}

// New returns an ingress service.
func New(runner system.Runner, writer FileWriter, deps dependency.Ensurer, reloader Reloader, cfg Config, logger *slog.Logger) *Service {
	return &Service{runner: runner, writer: writer, deps: deps, reloader: reloader, cfg: cfg, logger: logger}
}

// SitePaths returns the available and enabled paths for a site.
func (s *Service) SitePaths(site string) (string, string) {
	return filepath.Join(s.cfg.SitesAvailable, site), filepath.Join(s.cfg.SitesEnabled, site)
}

// Previous is the state of a site before Link replaced it.
type Previous struct {
	Site string
	// Content is nil when the site did not exist.
	Content []byte
	Enabled bool
}

// Existed reports whether Link overwrote an existing site.
func (p Previous) Existed() bool { return p.Content != nil }

// LinkProxy publishes domain and www.domain through a proxy to the local port.
func (s *Service) LinkProxy(ctx context.Context, domain string, port int) (Previous, error) {
	return s.Link(ctx, domain, templates.ProxyConfig(domain, port))
}

// LinkHost publishes a single host name through a proxy to the local port.
func (s *Service) LinkHost(ctx context.Context, host string, port int) error {
	_, err := s.Link(ctx, host, templates.HostProxyConfig(host, port))
	return err
}

// Link installs content as site, validates the full configuration and
// reloads nginx. On validation or reload failure the site is put back the
// way it was: files this call created are removed and an overwritten site
// gets its previous content back.
func (s *Service) Link(ctx context.Context, site, content string) (Previous, error) {
	if s.cfg.Container == "" {
		if err := s.deps.Ensure(ctx, "nginx"); err != nil {
			return Previous{}, err
		}
	}
	prev, err := s.snapshot(site)
	if err != nil {
		return Previous{}, err
	}
	available, enabled := s.SitePaths(site)
	if err := s.writer.WriteProtected(ctx, available, content); err != nil {
		return prev, err
	}
	if err := s.writer.Symlink(ctx, available, enabled); err != nil {
		s.rollback(ctx, prev)
		return prev, err
	}
	if err := s.validate(ctx, site); err != nil {
		s.rollback(ctx, prev)
		return prev, err
	}
	if err := s.reloader.Reload(ctx); err != nil {
		s.rollback(ctx, prev)
		return prev, fmt.Errorf("reload nginx for %s: %w", site, err)
	}
	s.logger.Info("proxy site enabled", "site", site, "replaced", prev.Existed())
	return prev, nil
}

// Restore undoes a successful Link and reloads nginx.
func (s *Service) Restore(ctx context.Context, prev Previous) error {
	if err := s.restoreFiles(ctx, prev); err != nil {
		return err
	}
	if err := s.reloader.Reload(ctx); err != nil {
		return fmt.Errorf("reload nginx: %w", err)
	}
	s.logger.Info("proxy site restored", "site", prev.Site, "existed", prev.Existed())
	return nil
}

// Unlink removes sites and reloads nginx once.
func (s *Service) Unlink(ctx context.Context, sites ...string) error {
	var paths []string
	for _, site := range sites {
		if site == "" {
			continue
		}
		available, enabled := s.SitePaths(site)
		paths = append(paths, enabled, available)
	}
	if len(paths) == 0 {
		return nil
	}
	if err := s.writer.RemoveProtected(ctx, paths...); err != nil {
		return err
	}
	if err := s.reloader.Reload(ctx); err != nil {
		return fmt.Errorf("reload nginx: %w", err)
	}
	s.logger.Info("proxy sites removed", "sites", sites)
	return nil
}

// Validate runs nginx -t.
func (s *Service) Validate(ctx context.Context) error {
	return s.validate(ctx, "")
}

func (s *Service) validate(ctx context.Context, site string) error {
	cmd := system.Sudo("nginx", "-t")
	if s.cfg.Container != "" {
		cmd = system.Cmd("docker", "exec", s.cfg.Container, "nginx", "-t")
	}
	out, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return &ConfigValidationError{Site: site, Output: out, Err: err}
	}
	return nil
}

func (s *Service) snapshot(site string) (Previous, error) {
	available, enabled := s.SitePaths(site)
	prev := Previous{Site: site}
	data, err := os.ReadFile(available)
	switch {
	case err == nil:
		prev.Content = data
	case !errors.Is(err, fs.ErrNotExist):
		return Previous{}, fmt.Errorf("read existing site %s: %w", site, err)
	}
	if _, err := os.Lstat(enabled); err == nil {
		prev.Enabled = true
	}
	return prev, nil
}

func (s *Service) restoreFiles(ctx context.Context, prev Previous) error {
	available, enabled := s.SitePaths(prev.Site)
	if !prev.Existed() {
		return s.writer.RemoveProtected(ctx, enabled, available)
	}
	if err := s.writer.WriteProtected(ctx, available, string(prev.Content)); err != nil {
		return err
	}
	if !prev.Enabled {
		return s.writer.RemoveProtected(ctx, enabled)
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, prev Previous) {
	if err := s.restoreFiles(ctx, prev); err != nil {
		s.logger.Error("failed to roll back proxy site", "site", prev.Site, "error", err)
	}
}
