package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/splax/peephost/internal/system"
)

// ErrNoMigration is returned when a project has neither a migrate script nor
// a Prisma schema.
var ErrNoMigration = errors.New("project: no migration strategy detected")

// Migration strategies reported by Migrate.
const (
	MigrateNPM    = "npm"
	MigratePrisma = "prisma"
)

// Migrate brings the project's database schema up to date. A "migrate"
// script in package.json wins over prisma/schema.prisma. database, when set,
// is exported as a sqlite DATABASE_URL.
func (s *Service) Migrate(ctx context.Context, name, database string) (strategy string, err error) {
	defer func() { s.observe("migrate", err) }()

	if s.deps.Runner == nil {
		return "", errors.New("project: migrate needs a command runner")
	}
	rec, err := s.deps.Store.Get(ctx, name)
	if err != nil {
		return "", err
	}
	dir := rec.ProjectPath
	var env []string
	if database != "" {
		abs, err := filepath.Abs(database)
		if err != nil {
			return "", fmt.Errorf("resolve database path: %w", err)
		}
		env = append(env, "DATABASE_URL=file:"+abs)
	}
	log := s.logger.With("project", name, "dir", dir)

	hasScript, err := hasMigrateScript(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", err
	}
	switch {
	case hasScript:
		strategy = MigrateNPM
	case fileExists(filepath.Join(dir, "prisma", "schema.prisma")):
		strategy = MigratePrisma
	default:
		return "", fmt.Errorf("%s: %w", name, ErrNoMigration)
	}
	if err := s.deps.Ensurer.Ensure(ctx, "npm"); err != nil {
		return "", err
	}

	run := func(args ...string) error {
		cmd := system.Cmd(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = env
		_, err := s.deps.Runner.Run(ctx, cmd)
		return err
	}
	log.Info("running migrations", "strategy", strategy)
	if strategy == MigrateNPM {
		if err := run("npm", "run", "migrate"); err != nil {
			return strategy, fmt.Errorf("npm run migrate: %w", err)
		}
		return strategy, nil
	}
	if err := run("npx", "prisma", "migrate", "deploy"); err != nil {
		// a missing generated client is the usual cause
		log.Warn("prisma migrate failed, generating client first", "error", err)
		if err := run("npx", "prisma", "generate"); err != nil {
			return strategy, fmt.Errorf("prisma generate: %w", err)
		}
		if err := run("npx", "prisma", "migrate", "deploy"); err != nil {
			return strategy, fmt.Errorf("prisma migrate deploy: %w", err)
		}
	}
	log.Info("migrations applied", "strategy", strategy)
	return strategy, nil
}

func hasMigrateScript(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read package.json: %w", err)
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false, fmt.Errorf("parse package.json: %w", err)
	}
	return pkg.Scripts["migrate"] != "", nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
