// Package project is the lifecycle facade used by the CLI and the dashboard:
// create, import, link a domain, set up mail, inspect and delete projects.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
	"github.com/splax/peephost/internal/service/dependency"
	"github.com/splax/peephost/internal/service/ingress"
	"github.com/splax/peephost/internal/service/teardown"
	"github.com/splax/peephost/internal/system"
	"github.com/splax/peephost/internal/templates"
	"github.com/splax/peephost/internal/validate"
	"github.com/splax/peephost/internal/workspace"
	"github.com/splax/peephost/pkg/crypto"
)

// DefaultTemplate is used when create is called without a template.
const DefaultTemplate = "nextjs"

// ErrUnknownTemplate is returned for a template id not in the catalog.
var ErrUnknownTemplate = errors.New("project: unknown template")

// ErrNoStats is returned when container statistics are unavailable.
var ErrNoStats = errors.New("project: container statistics unavailable")

// Proxy publishes and withdraws reverse proxy sites.
type Proxy interface {
	LinkProxy(ctx context.Context, domain string, port int) (ingress.Previous, error)
	Restore(ctx context.Context, prev ingress.Previous) error
	Unlink(ctx context.Context, sites ...string) error
}

// MailProvisioner sets up the mail stack for a project.
type MailProvisioner interface {
	Setup(ctx context.Context, name string, installWebmail bool) error
}

// Destroyer tears a project down.
type Destroyer interface {
	Destroy(ctx context.Context, name string) (teardown.Report, error)
}

// StatsSource samples container resource usage.
type StatsSource interface {
	Stats(ctx context.Context, prefix string) ([]domain.ContainerStat, error)
}

// Cloner fetches a repository into dest.
type Cloner func(ctx context.Context, repoURL, dest string) error

// Observer is notified when an operation finishes.
type Observer func(op string, err error)

// Deps groups the collaborators of Service. Stats, Clone and Runner are
// optional; Runner is only needed by Migrate.
type Deps struct {
	Store     repository.ProjectStore
	Ensurer   dependency.Ensurer
	Workspace *workspace.Manager
	Proxy     Proxy
	Mail      MailProvisioner
	Teardown  Destroyer
	Stats     StatsSource
	Clone     Cloner
	Runner    system.Runner
	Observer  Observer
}

// Config holds project defaults.
type Config struct {
	BasePort   int
	ScratchDir string
}

// Service implements the project lifecycle.
type Service struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New returns a project service.
func New(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if cfg.BasePort == 0 {
		cfg.BasePort = 3000
	}
	return &Service{deps: deps, cfg: cfg, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) observe(op string, err error) {
	if s.deps.Observer != nil {
		s.deps.Observer(op, err)
	}
}

// Get returns one project.
func (s *Service) Get(ctx context.Context, name string) (domain.ProjectRecord, error) {
	return s.deps.Store.Get(ctx, name)
}

// List returns every project sorted by name.
func (s *Service) List(ctx context.Context) ([]domain.ProjectRecord, error) {
	reg, err := s.deps.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Records(), nil
}

// Create registers name on the next free port, lays out its directories and
// scaffolds templateID into the project directory. An empty templateID
// creates the directories only. Partial work is rolled back on failure.
func (s *Service) Create(ctx context.Context, name, templateID string) (rec domain.ProjectRecord, err error) {
	defer func() { s.observe("create", err) }()

	if err := validate.ProjectName(name); err != nil {
		return domain.ProjectRecord{}, err
	}
	var tmpl templates.ProjectTemplate
	if templateID != "" {
		t, ok := templates.Lookup(templateID)
		if !ok {
			return domain.ProjectRecord{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
		}
		tmpl = t
	}
	if err := s.deps.Ensurer.Ensure(ctx, "docker"); err != nil {
		return domain.ProjectRecord{}, err
	}

	layout := s.deps.Workspace.Paths(name)
	preexisting := map[string]bool{
		layout.ProjectPath: exists(layout.ProjectPath),
		layout.DataPath:    exists(layout.DataPath),
	}
	err = s.deps.Store.Update(ctx, func(r repository.Registry) error {
		if _, ok := r[name]; ok {
			return fmt.Errorf("project %s: %w", name, repository.ErrExists)
		}
		rec = domain.ProjectRecord{
			ProjectPath: layout.ProjectPath,
			DataPath:    layout.DataPath,
			Port:        repository.NextAvailablePort(r, s.cfg.BasePort),
			Template:    tmpl.ID,
			CreatedAt:   s.now(),
		}
		r[name] = rec
		return nil
	})
	if err != nil {
		return domain.ProjectRecord{}, err
	}
	rec.Name = name
	log := s.logger.With("project", name, "port", rec.Port)

	if err := s.scaffold(rec, tmpl); err != nil {
		s.rollbackCreate(ctx, name, preexisting)
		return domain.ProjectRecord{}, err
	}
	if err := s.deps.Workspace.WriteMirror(rec); err != nil {
		log.Warn("failed to write local config", "error", err)
	}
	log.Info("project created", "template", tmpl.ID, "path", rec.ProjectPath)
	return rec, nil
}

func (s *Service) scaffold(rec domain.ProjectRecord, tmpl templates.ProjectTemplate) error {
	if _, err := s.deps.Workspace.Prepare(rec.Name); err != nil {
		return err
	}
	if tmpl.ID == "" {
		return nil
	}
	data := templates.ProjectData{Name: rec.Name, Port: rec.Port, DataPath: rec.DataPath}
	if tmpl.NeedsSecrets() {
		var err error
		if data.RootPassword, err = crypto.RandomSecret(24); err != nil {
			return err
		}
		if data.DBPassword, err = crypto.RandomSecret(24); err != nil {
			return err
		}
	}
	return s.deps.Workspace.WriteFiles(rec.ProjectPath, tmpl.Files(data))
}

func (s *Service) rollbackCreate(ctx context.Context, name string, preexisting map[string]bool) {
	if err := s.deps.Store.Remove(ctx, name); err != nil {
		s.logger.Error("failed to roll back registry entry", "project", name, "error", err)
	}
	for dir, existed := range preexisting {
		if existed {
			continue
		}
		if err := s.deps.Workspace.Cleanup(dir); err != nil {
			s.logger.Error("failed to roll back directory", "project", name, "path", dir, "error", err)
		}
	}
}

// LinkDomain publishes the project at domainName. The domain is persisted
// only after the proxy site validated and reloaded. A previously linked
// domain is withdrawn.
func (s *Service) LinkDomain(ctx context.Context, name, domainName string) (rec domain.ProjectRecord, err error) {
	defer func() { s.observe("link", err) }()

	if err := validate.Domain(domainName); err != nil {
		return domain.ProjectRecord{}, err
	}
	reg, err := s.deps.Store.List(ctx)
	if err != nil {
		return domain.ProjectRecord{}, err
	}
	rec, ok := reg[name]
	if !ok {
		return domain.ProjectRecord{}, fmt.Errorf("project %q: %w", name, repository.ErrNotFound)
	}
	rec.Name = name
	if owner, taken := repository.FindByDomain(reg, domainName); taken && owner != name {
		return domain.ProjectRecord{}, fmt.Errorf("domain %s is linked to %s: %w", domainName, owner, repository.ErrDomainInUse)
	}

	site, err := s.deps.Proxy.LinkProxy(ctx, domainName, rec.Port)
	if err != nil {
		return domain.ProjectRecord{}, err
	}

	previous := rec.Domain
	err = s.deps.Store.Update(ctx, func(r repository.Registry) error {
		cur, ok := r[name]
		if !ok {
			return fmt.Errorf("project %q: %w", name, repository.ErrNotFound)
		}
		if owner, taken := repository.FindByDomain(r, domainName); taken && owner != name {
			return fmt.Errorf("domain %s is linked to %s: %w", domainName, owner, repository.ErrDomainInUse)
		}
		cur.Domain = domainName
		r[name] = cur
		rec = cur
		return nil
	})
	if err != nil {
		// Only files this call created are removed; a replaced site gets its
		// previous content back.
		if restoreErr := s.deps.Proxy.Restore(ctx, site); restoreErr != nil {
			s.logger.Error("failed to withdraw proxy site", "project", name, "domain", domainName, "error", restoreErr)
		}
		return domain.ProjectRecord{}, err
	}
	rec.Name = name
	log := s.logger.With("project", name, "domain", domainName)

	if previous != "" && previous != domainName {
		if err := s.deps.Proxy.Unlink(ctx, previous); err != nil {
			log.Warn("failed to withdraw previous domain", "previous", previous, "error", err)
		}
	}
	if err := s.deps.Workspace.WriteMirror(rec); err != nil {
		log.Warn("failed to refresh local config", "error", err)
	}
	log.Info("domain linked")
	return rec, nil
}

// SetupMail provisions mail for the project's linked domain.
func (s *Service) SetupMail(ctx context.Context, name string, installWebmail bool) (err error) {
	defer func() { s.observe("mail_setup", err) }()
	return s.deps.Mail.Setup(ctx, name, installWebmail)
}

// Delete tears the project down.
func (s *Service) Delete(ctx context.Context, name string) (report teardown.Report, err error) {
	defer func() { s.observe("delete", err) }()
	return s.deps.Teardown.Destroy(ctx, name)
}

// Import moves src into the project, isolating environment and database
// files. When repoURL is set the repository is cloned and imported instead.
func (s *Service) Import(ctx context.Context, name, src, repoURL string) (moved []workspace.Moved, err error) {
	defer func() { s.observe("import", err) }()

	rec, err := s.deps.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	log := s.logger.With("project", name)
	if repoURL != "" {
		if s.deps.Clone == nil {
			return nil, errors.New("project: repository import is not configured")
		}
		if err := os.MkdirAll(s.cfg.ScratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		tmp, err := os.MkdirTemp(s.cfg.ScratchDir, "clone-"+name+"-")
		if err != nil {
			return nil, fmt.Errorf("create clone dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		log.Info("cloning repository", "repo", repoURL)
		if err := s.deps.Clone(ctx, repoURL, tmp); err != nil {
			return nil, err
		}
		src = tmp
	}

	moved, err = s.deps.Workspace.Import(src, workspace.Layout{ProjectPath: rec.ProjectPath, DataPath: rec.DataPath})
	for _, m := range moved {
		if m.LinkErr != nil {
			log.Warn("failed to link isolated file back", "file", m.Name, "error", m.LinkErr)
		} else if m.Placement != workspace.PlaceCode {
			log.Info("isolated file", "file", m.Name, "placement", m.Placement)
		}
	}
	if err != nil {
		return moved, err
	}
	log.Info("files imported", "count", len(moved))
	return moved, nil
}

// Stats samples the resource usage of the project's containers.
func (s *Service) Stats(ctx context.Context, name string) ([]domain.ContainerStat, error) {
	if _, err := s.deps.Store.Get(ctx, name); err != nil {
		return nil, err
	}
	if s.deps.Stats == nil {
		return nil, ErrNoStats
	}
	return s.deps.Stats.Stats(ctx, templates.ProjectContainerPrefix(name))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
