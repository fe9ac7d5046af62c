// Package teardown destroys every artifact of a project in a fixed order and
// reports what could not be removed.
package teardown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/splax/peephost/internal/docker"
	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
	"github.com/splax/peephost/internal/service/mail"
	"github.com/splax/peephost/internal/templates"
	"github.com/splax/peephost/internal/workspace"
)

// Step names in execution order.
const (
	StepContainers   = "containers"
	StepProxy        = "proxy"
	StepCertificates = "certificates"
	StepMail         = "mail"
	StepFiles        = "files"
	StepRegistry     = "registry"
)

// StackStopper stops compose stacks.
type StackStopper interface {
	Down(ctx context.Context, dir string) error
}

// ContainerSweeper removes containers left behind by compose.
type ContainerSweeper interface {
	RemoveByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// SiteRemover disables proxy sites.
type SiteRemover interface {
	Unlink(ctx context.Context, sites ...string) error
}

// CertRevoker deletes certificates.
type CertRevoker interface {
	Revoke(ctx context.Context, certName string) error
}

// MailPurger removes a project's mail users.
type MailPurger interface {
	PurgeProject(ctx context.Context, name string) ([]domain.MailUserMapping, error)
}

// DirRemover removes directory trees.
type DirRemover interface {
	Cleanup(path string) error
}

// TreeRemover removes directory trees with elevation.
type TreeRemover interface {
	RemoveTree(ctx context.Context, path string) error
}

// Deps groups the collaborators of Service. Sweeper may be nil when the
// docker daemon is unreachable; the compose step still runs.
type Deps struct {
	Store    repository.ProjectStore
	Stacks   StackStopper
	Sweeper  ContainerSweeper
	Sites    SiteRemover
	Certs    CertRevoker
	Mail     MailPurger
	Dirs     DirRemover
	Elevated TreeRemover
}

// StepResult is the outcome of one step. Err is nil on success; Error
// carries its message for JSON consumers.
type StepResult struct {
	Name  string `json:"name"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Report lists every step outcome in execution order.
type Report struct {
	Project string       `json:"project"`
	Steps   []StepResult `json:"steps"`
}

// Clean reports whether every step succeeded.
func (r Report) Clean() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the failed steps as errors.
func (r Report) Failed() []*StepError {
	var out []*StepError
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, &StepError{Project: r.Project, Step: s.Name, Err: s.Err})
		}
	}
	return out
}

// Observer is notified after every step.
type Observer func(step string, err error)

// Service runs project teardown.
type Service struct {
	deps    Deps
	observe Observer
	logger  *slog.Logger
}

// New returns a teardown service.
func New(deps Deps, observe Observer, logger *slog.Logger) *Service {
	return &Service{deps: deps, observe: observe, logger: logger}
}

type step struct {
	name string
	run  func(ctx context.Context, rec domain.ProjectRecord) error
}

func (s *Service) steps() []step {
	return []step{
		{StepContainers, s.stopContainers},
		{StepProxy, s.removeProxy},
		{StepCertificates, s.revokeCertificates},
		{StepMail, s.purgeMail},
		{StepFiles, s.removeFiles},
		{StepRegistry, s.removeRecord},
	}
}

// Destroy removes the project's containers, proxy sites, certificates, mail
// users, directories and finally its registry entry. Every step runs even
// when earlier ones fail. A non-clean run returns *TeardownError alongside
// the full report.
func (s *Service) Destroy(ctx context.Context, name string) (Report, error) {
	rec, err := s.deps.Store.Get(ctx, name)
	if err != nil {
		return Report{Project: name}, err
	}
	rec.Name = name
	log := s.logger.With("project", name)
	log.Info("destroying project")

	report := Report{Project: name}
	for _, st := range s.steps() {
		err := st.run(ctx, rec)
		res := StepResult{Name: st.name, Err: err}
		if err != nil {
			res.Error = err.Error()
			log.Warn("teardown step failed", "step", st.name, "error", err)
		} else {
			log.Debug("teardown step done", "step", st.name)
		}
		if s.observe != nil {
			s.observe(st.name, err)
		}
		report.Steps = append(report.Steps, res)
	}

	if !report.Clean() {
		return report, &TeardownError{Project: name, Failed: report.Failed()}
	}
	log.Info("project destroyed")
	return report, nil
}

func (s *Service) stopContainers(ctx context.Context, rec domain.ProjectRecord) error {
	var errs []error
	for _, dir := range []string{mail.WebmailDir(rec), rec.ProjectPath} {
		if dir == "" {
			continue
		}
		if err := s.deps.Stacks.Down(ctx, dir); err != nil && !errors.Is(err, docker.ErrNoComposeFile) {
			errs = append(errs, err)
		}
	}
	if s.deps.Sweeper != nil {
		removed, err := s.deps.Sweeper.RemoveByPrefix(ctx, templates.ProjectContainerPrefix(rec.Name))
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep containers: %w", err))
		} else if len(removed) > 0 {
			s.logger.Info("removed leftover containers", "project", rec.Name, "containers", removed)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) removeProxy(ctx context.Context, rec domain.ProjectRecord) error {
	if !rec.HasDomain() {
		return nil
	}
	return s.deps.Sites.Unlink(ctx, rec.Domain, rec.WebmailHost())
}

func (s *Service) revokeCertificates(ctx context.Context, rec domain.ProjectRecord) error {
	if !rec.HasDomain() {
		return nil
	}
	var errs []error
	for _, name := range []string{rec.Domain, rec.WebmailHost()} {
		if err := s.deps.Certs.Revoke(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) purgeMail(ctx context.Context, rec domain.ProjectRecord) error {
	removed, err := s.deps.Mail.PurgeProject(ctx, rec.Name)
	if len(removed) > 0 {
		s.logger.Info("removed mail users", "project", rec.Name, "count", len(removed))
	}
	return err
}

func (s *Service) removeFiles(ctx context.Context, rec domain.ProjectRecord) error {
	var errs []error
	for _, dir := range []string{rec.DataPath, rec.ProjectPath} {
		if dir == "" {
			continue
		}
		err := s.deps.Dirs.Cleanup(dir)
		if err == nil {
			continue
		}
		if errors.Is(err, workspace.ErrOutsideRoot) {
			errs = append(errs, err)
			continue
		}
		s.logger.Warn("removal failed, retrying with elevation", "path", dir, "error", err)
		if err := s.deps.Elevated.RemoveTree(ctx, dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) removeRecord(ctx context.Context, rec domain.ProjectRecord) error {
	return s.deps.Store.Remove(ctx, rec.Name)
}
