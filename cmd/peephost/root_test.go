package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/service/teardown"
	"github.com/splax/peephost/pkg/config"
	"github.com/splax/peephost/pkg/jwt"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PEEPHOST_ROOT", filepath.Join(home, "state"))
	return home
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "peephost dev\n", out)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "conf", "peephost.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "state", "projects.json"), cfg.RegistryPath)

	_, err = run(t, "config", "init", path)
	require.Error(t, err)

	_, err = run(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestInitCreatesStateDirs(t *testing.T) {
	home := isolate(t)

	out, err := run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "state directory ready")
	for _, dir := range []string{"state", "state/data", "state/sites"} {
		info, err := os.Stat(filepath.Join(home, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	_, err = os.Stat(filepath.Join(home, ".peephost", "config.yaml"))
	require.NoError(t, err)
}

func TestTokenScopes(t *testing.T) {
	isolate(t)
	t.Setenv("PEEPHOST_JWT_SECRET", "s3cret")

	out, err := run(t, "token", "--operator", "ops", "--read-only")
	require.NoError(t, err)
	claims, err := jwt.Parse(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "read", claims.Scope)

	_, err = run(t, "token")
	require.Error(t, err)
}

func TestTokenWithoutSecretFails(t *testing.T) {
	isolate(t)
	_, err := run(t, "token", "--operator", "ops")
	require.ErrorIs(t, err, jwt.ErrEmptySecret)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	isolate(t)
	_, err := run(t, "delete", "blog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestServeRequiresSecret(t *testing.T) {
	isolate(t)
	_, err := run(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestWriteReport(t *testing.T) {
	var out bytes.Buffer
	c := &cli{out: &out}
	c.writeReport(teardown.Report{Project: "blog", Steps: []teardown.StepResult{
		{Name: teardown.StepContainers},
		{Name: teardown.StepProxy, Err: errors.New("nginx -t failed")},
	}})
	assert.Contains(t, out.String(), "containers    ok")
	assert.Contains(t, out.String(), "proxy         FAILED nginx -t failed")
}

func TestWriteStats(t *testing.T) {
	var out bytes.Buffer
	c := &cli{out: &out}
	require.NoError(t, c.writeStats([]domain.ContainerStat{
		{Name: "blog-app-1", State: "running", CPUPercent: 12.5, MemoryBytes: 5 << 20, MemoryLimit: 2 << 30, MemoryPercent: 0.24},
		{Name: "blog-db-1", State: "exited"},
	}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "5MiB / 2GiB")
	assert.Contains(t, lines[1], "12.50")
	assert.Contains(t, lines[2], "0B / 0B")
}
