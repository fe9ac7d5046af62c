// Package cert issues and removes TLS certificates with certbot.
package cert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/splax/peephost/internal/service/dependency"
	"github.com/splax/peephost/internal/system"
)

var errNoHosts = errors.New("at least one host name is required")

// Issuer is the contract used by provisioning and remediation.
type Issuer interface {
	Issue(ctx context.Context, hosts ...string) error
	Revoke(ctx context.Context, certName string) error
}

// Service drives certbot.
type Service struct {
	runner system.Runner
	deps   dependency.Ensurer
	email  string
	logger *slog.Logger
}

// New returns a certificate service. With an empty email certbot registers
// without one.
func New(runner system.Runner, deps dependency.Ensurer, email string, logger *slog.Logger) *Service {
	return &Service{runner: runner, deps: deps, email: email, logger: logger}
}

// Issue obtains one certificate covering hosts, named after the first host.
// The nginx plugin is tried first, then the standalone authenticator.
func (s *Service) Issue(ctx context.Context, hosts ...string) error {
	if len(hosts) == 0 {
		return errNoHosts
	}
	if err := s.deps.Ensure(ctx, "certbot"); err != nil {
		return err
	}
	args := append([]string{"--nginx"}, s.common(hosts)...)
	_, err := s.runner.Run(ctx, system.Sudo("certbot", args...))
	if err == nil {
		s.logger.Info("certificate issued", "hosts", hosts, "authenticator", "nginx")
		return nil
	}
	s.logger.Warn("nginx authenticator failed, trying standalone", "hosts", hosts, "error", err)

	args = append([]string{"certonly", "--standalone"}, s.common(hosts)...)
	if _, err := s.runner.Run(ctx, system.Sudo("certbot", args...)); err != nil {
		return fmt.Errorf("issue certificate for %s: %w", hosts[0], err)
	}
	s.logger.Info("certificate issued", "hosts", hosts, "authenticator", "standalone")
	return nil
}

// Revoke deletes the certificate lineage certName. A lineage that does not
// exist is not an error.
func (s *Service) Revoke(ctx context.Context, certName string) error {
	if certName == "" {
		return errNoHosts
	}
	out, err := s.runner.Run(ctx, system.Sudo("certbot", "delete", "--cert-name", certName, "--non-interactive"))
	if err != nil {
		if strings.Contains(out, "No certificate found") {
			s.logger.Debug("certificate already absent", "cert", certName)
			return nil
		}
		return fmt.Errorf("delete certificate %s: %w", certName, err)
	}
	s.logger.Info("certificate deleted", "cert", certName)
	return nil
}

// List returns certbot's certificate listing.
func (s *Service) List(ctx context.Context) (string, error) {
	out, err := s.runner.Run(ctx, system.Sudo("certbot", "certificates"))
	if err != nil {
		return out, fmt.Errorf("list certificates: %w", err)
	}
	return out, nil
}

func (s *Service) common(hosts []string) []string {
	args := []string{"--cert-name", hosts[0], "--non-interactive", "--agree-tos", "--keep-until-expiring"}
	if s.email != "" {
		args = append(args, "-m", s.email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}
	for _, h := range hosts {
		args = append(args, "-d", h)
	}
	return args
}

var _ Issuer = (*Service)(nil)
