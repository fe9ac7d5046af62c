// Package mail provisions the Postfix/Dovecot stack for a project domain,
// manages mailbox users and installs the webmail interface.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
	"github.com/splax/peephost/internal/service/cert"
	"github.com/splax/peephost/internal/service/dependency"
	"github.com/splax/peephost/internal/service/diagnose"
	"github.com/splax/peephost/internal/system"
	"github.com/splax/peephost/internal/templates"
	"github.com/splax/peephost/internal/validate"
	"github.com/splax/peephost/pkg/crypto"
)

// ErrNoDomain is returned when mail is requested for a project without a domain.
var ErrNoDomain = errors.New("mail: project has no linked domain")

// Writer places files in protected locations.
type Writer interface {
	WriteProtected(ctx context.Context, path, content string) error
	EnsureFile(ctx context.Context, path string) error
}

// Restarter restarts a service with diagnosis and bounded remediation.
type Restarter interface {
	Restart(ctx context.Context, service string, remedies diagnose.Remedies, observe diagnose.Observer) error
}

// SiteLinker publishes a host name through the reverse proxy.
type SiteLinker interface {
	LinkHost(ctx context.Context, host string, port int) error
}

// StackRunner starts a compose stack.
type StackRunner interface {
	Up(ctx context.Context, dir string) error
}

// Config holds mail related settings.
type Config struct {
	Paths           templates.MailPaths
	WebmailBasePort int
}

// Service runs the mail provisioning pipeline.
type Service struct {
	store    repository.ProjectStore
	runner   system.Runner
	writer   Writer
	deps     dependency.Ensurer
	restart  Restarter
	certs    cert.Issuer
	sites    SiteLinker
	stacks   StackRunner
	observer diagnose.Observer
	cfg      Config
	logger   *slog.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Store    repository.ProjectStore
	Runner   system.Runner
	Writer   Writer
	Ensurer  dependency.Ensurer
	Restart  Restarter
	Certs    cert.Issuer
	Sites    SiteLinker
	Stacks   StackRunner
	Observer diagnose.Observer
}

// New returns a mail service.
func New(d Deps, cfg Config, logger *slog.Logger) *Service {
	if cfg.WebmailBasePort == 0 {
		cfg.WebmailBasePort = 8000
	}
	return &Service{
		store:    d.Store,
		runner:   d.Runner,
		writer:   d.Writer,
		deps:     d.Ensurer,
		restart:  d.Restart,
		certs:    d.Certs,
		sites:    d.Sites,
		stacks:   d.Stacks,
		observer: d.Observer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Setup configures and starts the mail stack for the project's domain and
// optionally installs webmail.
func (s *Service) Setup(ctx context.Context, name string, installWebmail bool) error {
	rec, err := s.linkedProject(ctx, name)
	if err != nil {
		return err
	}
	log := s.logger.With("project", name, "domain", rec.Domain)
	log.Info("setting up mail server")

	for _, tool := range []string{"postfix", "dovecot"} {
		if err := s.deps.Ensure(ctx, tool); err != nil {
			return err
		}
	}
	files := append(templates.MailTransferConfig(rec.Domain, s.cfg.Paths), templates.MailDeliveryConfig(rec.Domain, s.cfg.Paths)...)
	for _, f := range files {
		if err := s.writer.WriteProtected(ctx, f.Path, f.Content); err != nil {
			return err
		}
	}
	if err := s.writer.EnsureFile(ctx, s.cfg.Paths.VirtualMap); err != nil {
		return err
	}
	if err := s.rebuildIndex(ctx); err != nil {
		return err
	}

	remedies := s.remedies(rec.Domain)
	for _, svc := range []string{"postfix", "dovecot"} {
		if err := s.restart.Restart(ctx, svc, remedies, s.observer); err != nil {
			return err
		}
	}
	if err := s.AllowPorts(ctx); err != nil {
		return err
	}
	log.Info("mail server configured")

	if installWebmail {
		return s.InstallWebmail(ctx, name)
	}
	return nil
}

// remedies registers the automatic fixes available during mail restarts.
func (s *Service) remedies(domainName string) diagnose.Remedies {
	return diagnose.Remedies{
		domain.FixMissingSSL: func(ctx context.Context, _ domain.ServiceDiagnosis) error {
			return s.certs.Issue(ctx, templates.CertificateTargets(domainName)...)
		},
	}
}

// AllowPorts opens the mail protocol ports in the host firewall.
func (s *Service) AllowPorts(ctx context.Context) error {
	if err := s.deps.Ensure(ctx, "ufw"); err != nil {
		return err
	}
	for _, p := range domain.MailPorts {
		port, err := nat.NewPort("tcp", strconv.Itoa(p))
		if err != nil {
			return fmt.Errorf("mail port %d: %w", p, err)
		}
		if _, err := s.runner.Run(ctx, system.Sudo("ufw", "allow", string(port))); err != nil {
			return fmt.Errorf("open firewall port %s: %w", port, err)
		}
	}
	return nil
}

// AddUser creates the system account backing local@domain, sets its
// password when one is given and maps the address to it.
func (s *Service) AddUser(ctx context.Context, name, local, password string) (domain.MailUserMapping, error) {
	rec, err := s.linkedProject(ctx, name)
	if err != nil {
		return domain.MailUserMapping{}, err
	}
	if err := validate.Mailbox(local, name); err != nil {
		return domain.MailUserMapping{}, err
	}
	mapping := domain.MailUserMapping{
		Email:      local + "@" + rec.Domain,
		SystemUser: domain.SystemUserName(local, name),
	}
	current, err := s.readAliasMap()
	if err != nil {
		return domain.MailUserMapping{}, err
	}
	next, err := current.Add(mapping)
	if err != nil {
		return domain.MailUserMapping{}, err
	}

	if _, err := s.runner.Run(ctx, system.Sudo("useradd", "-m", "-s", "/usr/sbin/nologin", mapping.SystemUser)); err != nil {
		return domain.MailUserMapping{}, fmt.Errorf("create system user %s: %w", mapping.SystemUser, err)
	}
	mapped, err := s.finishUser(ctx, mapping.SystemUser, password, next)
	if err != nil {
		s.discardUser(ctx, mapping.SystemUser, current, mapped)
		return domain.MailUserMapping{}, err
	}
	s.logger.Info("mail user created", "project", name, "email", mapping.Email, "user", mapping.SystemUser)
	return mapping, nil
}

// finishUser runs the steps after useradd. mapped reports whether the alias
// map was rewritten.
func (s *Service) finishUser(ctx context.Context, user, password string, next AliasMap) (mapped bool, err error) {
	if password != "" {
		if err := s.setPassword(ctx, user, password); err != nil {
			return false, err
		}
	}
	if err := s.writeAliasMap(ctx, next); err != nil {
		return false, err
	}
	if _, err := s.runner.Run(ctx, system.Sudo("systemctl", "reload", "postfix")); err != nil {
		return true, fmt.Errorf("reload postfix: %w", err)
	}
	return true, nil
}

// discardUser undoes a partially created mailbox so AddUser can be retried.
func (s *Service) discardUser(ctx context.Context, user string, previous AliasMap, mapped bool) {
	if mapped {
		if err := s.writeAliasMap(ctx, previous); err != nil {
			s.logger.Error("failed to restore alias map", "user", user, "error", err)
		}
	}
	if err := s.deleteSystemUser(ctx, user); err != nil {
		s.logger.Error("failed to remove partially created user", "user", user, "error", err)
	}
}

// SetPassword replaces the password of an existing mailbox.
func (s *Service) SetPassword(ctx context.Context, name, local, password string) error {
	if err := validate.Mailbox(local, name); err != nil {
		return err
	}
	return s.setPassword(ctx, domain.SystemUserName(local, name), password)
}

func (s *Service) setPassword(ctx context.Context, user, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	cmd := system.Sudo("chpasswd", "-e")
	cmd.Stdin = strings.NewReader(user + ":" + string(hash) + "\n")
	if _, err := s.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("set password for %s: %w", user, err)
	}
	return nil
}

// RemoveUser unmaps local@domain and deletes its system account.
func (s *Service) RemoveUser(ctx context.Context, name, local string) error {
	rec, err := s.store.Get(ctx, name)
	if err != nil {
		return err
	}
	user := domain.SystemUserName(local, name)
	current, err := s.readAliasMap()
	if err != nil {
		return err
	}
	next, removed := current.filter(func(m domain.MailUserMapping) bool {
		return m.SystemUser == user || (rec.Domain != "" && strings.EqualFold(m.Email, local+"@"+rec.Domain))
	})
	if len(removed) > 0 {
		if err := s.writeAliasMap(ctx, next); err != nil {
			return err
		}
	}
	if err := s.deleteSystemUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("mail user removed", "project", name, "user", user)
	return nil
}

// ListUsers returns the mappings belonging to the project.
func (s *Service) ListUsers(ctx context.Context, name string) ([]domain.MailUserMapping, error) {
	if _, err := s.store.Get(ctx, name); err != nil {
		return nil, err
	}
	current, err := s.readAliasMap()
	if err != nil {
		return nil, err
	}
	var out []domain.MailUserMapping
	suffix := domain.ProjectSuffix(name)
	for _, m := range current.Mappings() {
		if strings.HasSuffix(m.SystemUser, suffix) {
			out = append(out, m)
		}
	}
	return out, nil
}

// PurgeProject removes every mapping and system user of the project. All
// users are attempted; the first error is returned.
func (s *Service) PurgeProject(ctx context.Context, name string) ([]domain.MailUserMapping, error) {
	current, err := s.readAliasMap()
	if err != nil {
		return nil, err
	}
	next, removed := current.RemoveBySuffix(domain.ProjectSuffix(name))
	if len(removed) == 0 {
		return nil, nil
	}
	if err := s.writeAliasMap(ctx, next); err != nil {
		return nil, err
	}
	var firstErr error
	for _, m := range removed {
		if err := s.deleteSystemUser(ctx, m.SystemUser); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return removed, firstErr
}

func (s *Service) deleteSystemUser(ctx context.Context, user string) error {
	out, err := s.runner.Run(ctx, system.Sudo("userdel", "-r", user))
	if err != nil {
		// userdel exits 6 for an unknown user
		if strings.Contains(out, "does not exist") {
			return nil
		}
		return fmt.Errorf("delete system user %s: %w", user, err)
	}
	return nil
}

func (s *Service) readAliasMap() (AliasMap, error) {
	data, err := os.ReadFile(s.cfg.Paths.VirtualMap)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AliasMap{}, nil
		}
		return AliasMap{}, fmt.Errorf("read alias map: %w", err)
	}
	return ParseAliasMap(string(data)), nil
}

func (s *Service) writeAliasMap(ctx context.Context, m AliasMap) error {
	if err := s.writer.WriteProtected(ctx, s.cfg.Paths.VirtualMap, m.String()); err != nil {
		return err
	}
	return s.rebuildIndex(ctx)
}

func (s *Service) rebuildIndex(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, system.Sudo("postmap", s.cfg.Paths.VirtualMap)); err != nil {
		return fmt.Errorf("rebuild alias index: %w", err)
	}
	return nil
}

func (s *Service) linkedProject(ctx context.Context, name string) (domain.ProjectRecord, error) {
	rec, err := s.store.Get(ctx, name)
	if err != nil {
		return domain.ProjectRecord{}, err
	}
	if !rec.HasDomain() {
		return domain.ProjectRecord{}, fmt.Errorf("project %s: %w", name, ErrNoDomain)
	}
	return rec, nil
}
