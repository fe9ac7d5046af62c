package system_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/system"
	"github.com/splax/peephost/internal/system/systemtest"
)

func TestWriteProtectedMovesAndChowns(t *testing.T) {
	scratch := t.TempDir()
	target := filepath.Join(t.TempDir(), "site.conf")
	runner := systemtest.New()
	writer := system.NewPrivilegedWriter(runner, scratch)

	require.NoError(t, writer.WriteProtected(context.Background(), target, "server {}\n"))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "server {}\n", string(data))
	assert.Equal(t, 1, runner.Count("mv -f "))
	assert.Equal(t, 1, runner.Count("chown root:root "+target))
	for _, cmd := range runner.Commands() {
		assert.True(t, cmd.Privileged, cmd.Name)
	}
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteProtectedFailedMoveLeavesTargetAndNoStaging(t *testing.T) {
	scratch := t.TempDir()
	target := filepath.Join(t.TempDir(), "main.cf")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644))

	runner := systemtest.New().On("mv", "", systemtest.Fail("mv: cannot move: Permission denied"))
	writer := system.NewPrivilegedWriter(runner, scratch)

	err := writer.WriteProtected(context.Background(), target, "replacement")
	var writeErr *system.WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "move", writeErr.Stage)
	assert.Equal(t, target, writeErr.Path)
	assert.True(t, system.IsPermissionDenied(err))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, runner.Count("chown"))
}

func TestWriteProtectedFailedChownReportsMisownedFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "virtual")
	runner := systemtest.New().On("chown", "chown: changing ownership: Operation not permitted", systemtest.Fail(""))
	writer := system.NewPrivilegedWriter(runner, t.TempDir())

	err := writer.WriteProtected(context.Background(), target, "a@example.com    a_blog\n")
	var writeErr *system.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "chown", writeErr.Stage)
	assert.Contains(t, err.Error(), "in place with the wrong owner, want root:root")
	var execErr *system.ExecError
	assert.ErrorAs(t, err, &execErr)

	data, readErr := os.ReadFile(target)
	require.NoError(t, readErr)
	assert.Equal(t, "a@example.com    a_blog\n", string(data))
}

func TestEnsureFileOnlyCreatesMissing(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "virtual")
	require.NoError(t, os.WriteFile(existing, []byte("a b\n"), 0o644))
	runner := systemtest.New()
	writer := system.NewPrivilegedWriter(runner, t.TempDir())

	require.NoError(t, writer.EnsureFile(context.Background(), existing))
	assert.Empty(t, runner.Calls())

	missing := filepath.Join(dir, "fresh")
	require.NoError(t, writer.EnsureFile(context.Background(), missing))
	info, err := os.Stat(missing)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSymlinkAndRemove(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "available")
	link := filepath.Join(dir, "enabled")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	writer := system.NewPrivilegedWriter(systemtest.New(), t.TempDir())

	require.NoError(t, writer.Symlink(context.Background(), target, link))
	dest, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, target, dest)

	require.NoError(t, writer.RemoveProtected(context.Background(), link, target))
	_, err = os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
}
