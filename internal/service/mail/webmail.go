package mail

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
	"github.com/splax/peephost/internal/templates"
	"github.com/splax/peephost/pkg/crypto"
)

// WebmailDir is the directory below a project's data path holding the
// webmail compose stack.
func WebmailDir(rec domain.ProjectRecord) string {
	return filepath.Join(rec.DataPath, "webmail")
}

// InstallWebmail starts the Roundcube stack for the project and publishes
// it at webmail.<domain>. The webmail port is reserved in the registry on
// first install and reused afterwards.
func (s *Service) InstallWebmail(ctx context.Context, name string) error {
	if _, err := s.linkedProject(ctx, name); err != nil {
		return err
	}
	if err := s.deps.Ensure(ctx, "docker"); err != nil {
		return err
	}

	var rec domain.ProjectRecord
	err := s.store.Update(ctx, func(r repository.Registry) error {
		cur, ok := r[name]
		if !ok {
			return fmt.Errorf("project %s: %w", name, repository.ErrNotFound)
		}
		if cur.WebmailPort == 0 {
			cur.WebmailPort = repository.NextAvailablePort(r, s.cfg.WebmailBasePort)
			r[name] = cur
		}
		rec = cur
		return nil
	})
	if err != nil {
		return err
	}
	log := s.logger.With("project", name, "port", rec.WebmailPort)

	dir := WebmailDir(rec)
	if err := s.writeCompose(dir, name, rec.WebmailPort); err != nil {
		return err
	}
	if err := s.stacks.Up(ctx, dir); err != nil {
		return fmt.Errorf("start webmail: %w", err)
	}
	host := rec.WebmailHost()
	if err := s.sites.LinkHost(ctx, host, rec.WebmailPort); err != nil {
		return err
	}
	if err := s.certs.Issue(ctx, host); err != nil {
		return err
	}
	log.Info("webmail installed", "host", host)
	return nil
}

// writeCompose renders the compose file unless one is already present, so
// database credentials survive reinstalls.
func (s *Service) writeCompose(dir, name string, port int) error {
	path := filepath.Join(dir, "docker-compose.yml")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat webmail compose: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create webmail dir: %w", err)
	}
	root, err := crypto.RandomSecret(24)
	if err != nil {
		return err
	}
	db, err := crypto.RandomSecret(24)
	if err != nil {
		return err
	}
	content := templates.WebInterfaceCompose(name, port, templates.WebmailSecrets{RootPassword: root, DBPassword: db})
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write webmail compose: %w", err)
	}
	return nil
}
