package dependency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/system"
	"github.com/splax/peephost/internal/system/systemtest"
)

func newTestService(runner system.Runner) *Service {
	pm, _ := LookupPackageManager("apt")
	return New(runner, pm, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEnsurePresentSkipsInstall(t *testing.T) {
	runner := systemtest.New().On("nginx -v", "nginx version: nginx/1.24.0", nil)
	svc := newTestService(runner)

	require.NoError(t, svc.Ensure(context.Background(), "nginx"))
	require.NoError(t, svc.Ensure(context.Background(), "nginx"))
	assert.Equal(t, 1, runner.Count("nginx -v"), "second ensure served from cache")
	assert.Zero(t, runner.Count("apt-get"))
}

func TestProbeFailureOtherThanMissingMeansPresent(t *testing.T) {
	runner := systemtest.New().On("postfix status", "", systemtest.Fail("postfix: fatal: must be run as root"))
	svc := newTestService(runner)

	require.NoError(t, svc.Ensure(context.Background(), "postfix"))
	assert.Zero(t, runner.Count("apt-get"))
}

func TestEnsureInstallsMissingTool(t *testing.T) {
	runner := systemtest.New().
		On("certbot --version", "", systemtest.Missing("certbot")).
		On("certbot --version", "certbot 2.9.0", nil)
	svc := newTestService(runner)

	require.NoError(t, svc.Ensure(context.Background(), "certbot"))
	assert.Equal(t, []string{
		"certbot --version",
		"apt-get update",
		"apt-get install -y certbot python3-certbot-nginx",
		"certbot --version",
	}, runner.Calls())
	for _, cmd := range runner.Commands() {
		if cmd.Name == "apt-get" {
			assert.True(t, cmd.Privileged)
		}
	}
}

func TestEnsureFailsWhenStillMissing(t *testing.T) {
	runner := systemtest.New().On("ufw --version", "", systemtest.Missing("ufw"))
	svc := newTestService(runner)

	err := svc.Ensure(context.Background(), "ufw")
	var depErr *Error
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, "ufw", depErr.Tool)
	assert.Equal(t, "verify", depErr.Stage)
	assert.Equal(t, 1, runner.Count("apt-get install"), "no retry of the install")
}

func TestEnsureInstallFailure(t *testing.T) {
	runner := systemtest.New().
		On("git --version", "", systemtest.Missing("git")).
		On("apt-get install", "", systemtest.Fail("E: Unable to locate package git"))
	svc := newTestService(runner)

	err := svc.Ensure(context.Background(), "git")
	var depErr *Error
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, "install", depErr.Stage)
	assert.Equal(t, []string{"git"}, depErr.Packages)
}

func TestEnsureUnknownTool(t *testing.T) {
	svc := newTestService(systemtest.New())
	var depErr *Error
	require.True(t, errors.As(svc.Ensure(context.Background(), "emacs"), &depErr))
}

func TestLookupPackageManager(t *testing.T) {
	pm, err := LookupPackageManager("")
	require.NoError(t, err)
	assert.Equal(t, "apt-get", pm.Binary)
	pm, err = LookupPackageManager("dnf")
	require.NoError(t, err)
	assert.Equal(t, []string{"install", "-y"}, pm.Install)
	_, err = LookupPackageManager("pacman")
	require.Error(t, err)
}

func TestUpgradeRunsRefreshUpgradeAutoremove(t *testing.T) {
	runner := systemtest.New().On("nginx -v", "nginx version: nginx/1.24.0", nil)
	svc := newTestService(runner)
	ctx := context.Background()
	require.NoError(t, svc.Ensure(ctx, "nginx"))

	require.NoError(t, svc.Upgrade(ctx))
	assert.Equal(t, []string{
		"nginx -v",
		"apt-get update",
		"apt-get upgrade -y",
		"apt-get autoremove -y",
	}, runner.Calls())

	require.NoError(t, svc.Ensure(ctx, "nginx"))
	assert.Equal(t, 2, runner.Count("nginx -v"), "upgrade drops cached probes")
}

func TestUpgradeStopsAtFailedStage(t *testing.T) {
	runner := systemtest.New().On("apt-get upgrade", "E: dpkg was interrupted", systemtest.Fail(""))
	svc := newTestService(runner)

	err := svc.Upgrade(context.Background())
	var depErr *Error
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "upgrade", depErr.Stage)
	assert.Zero(t, runner.Count("apt-get autoremove"))
}
