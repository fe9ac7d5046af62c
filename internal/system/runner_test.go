package system

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecRunnerMissingBinaryIsNotFound(t *testing.T) {
	r := NewExecRunner(false, discard())
	_, err := r.Run(context.Background(), Cmd("peephost-definitely-missing-binary", "--version"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, -1, execErr.ExitCode)
}

func TestExecRunnerCapturesOutputAndExitCode(t *testing.T) {
	r := NewExecRunner(false, discard())
	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo Permission denied >&2; exit 3"}})
	require.Error(t, err)
	assert.Contains(t, out, "Permission denied")

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.True(t, execErr.PermissionDenied())
	assert.False(t, execErr.NotFound())
}

func TestExecRunnerStdin(t *testing.T) {
	r := NewExecRunner(false, discard())
	out, err := r.Run(context.Background(), Command{Name: "cat", Stdin: strings.NewReader("hello")})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(`sudo nginx -s reload`)
	require.NoError(t, err)
	assert.True(t, cmd.Privileged)
	assert.Equal(t, "nginx", cmd.Name)
	assert.Equal(t, []string{"-s", "reload"}, cmd.Args)

	cmd, err = ParseCommand(`sh -c "echo 'a b'"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "echo 'a b'"}, cmd.Args)

	cmd, err = ParseCommand(`docker exec proxy nginx -s\ reload`)
	require.NoError(t, err)
	assert.False(t, cmd.Privileged)
	assert.Equal(t, []string{"exec", "proxy", "nginx", "-s reload"}, cmd.Args)

	_, err = ParseCommand(`echo "unterminated`)
	require.Error(t, err)
	_, err = ParseCommand("sudo")
	require.Error(t, err)
	_, err = ParseCommand("   ")
	require.Error(t, err)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "sudo systemctl restart postfix", Sudo("systemctl", "restart", "postfix").String())
	assert.Equal(t, "git --version", Cmd("git", "--version").String())
}
