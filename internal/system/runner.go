// Package system runs host commands and performs privileged filesystem
// changes on behalf of the provisioning services.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command describes one process invocation.
type Command struct {
	Name       string
	Args       []string
	Dir        string
	Env        []string
	Stdin      io.Reader
	Privileged bool
}

// Cmd builds an unprivileged command.
func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Sudo builds a command that needs root.
func Sudo(name string, args ...string) Command {
	return Command{Name: name, Args: args, Privileged: true}
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	line := strings.Join(parts, " ")
	if c.Privileged {
		return "sudo " + line
	}
	return line
}

// Runner executes commands and returns their combined output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// ExecRunner runs commands with os/exec. Privileged commands are prefixed
// with sudo unless the process already runs as root or sudo is disabled.
type ExecRunner struct {
	useSudo bool
	isRoot  bool
	logger  *slog.Logger
}

// NewExecRunner returns a runner for the local host.
func NewExecRunner(useSudo bool, logger *slog.Logger) *ExecRunner {
	return &ExecRunner{useSudo: useSudo, isRoot: os.Geteuid() == 0, logger: logger}
}

// Run executes cmd and returns its combined output. Failures are *ExecError.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	name, args := cmd.Name, cmd.Args
	if cmd.Privileged && r.useSudo && !r.isRoot {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	} else if cmd.Privileged {
		// sudo may need the terminal for a password prompt
		c.Stdin = os.Stdin
	}
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	err := c.Run()
	output := out.String()
	if len(output) > 0 && r.logger != nil {
		r.logger.Debug("command output", "command", cmd.String(), "output", output)
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return output, &ExecError{Command: cmd.String(), Output: output, ExitCode: code, Err: err}
	}
	return output, nil
}

// ExecError reports a failed command.
type ExecError struct {
	Command  string
	Output   string
	ExitCode int
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLines(out, 5)
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// NotFound reports whether the executable itself is missing.
func (e *ExecError) NotFound() bool {
	if errors.Is(e.Err, exec.ErrNotFound) || errors.Is(e.Err, os.ErrNotExist) {
		return true
	}
	return strings.Contains(strings.ToLower(e.Output), "command not found")
}

// PermissionDenied reports whether the failure looks like missing privileges.
func (e *ExecError) PermissionDenied() bool {
	if errors.Is(e.Err, os.ErrPermission) {
		return true
	}
	out := strings.ToLower(e.Output)
	return strings.Contains(out, "permission denied") || strings.Contains(out, "operation not permitted")
}

// IsNotFound reports whether err is an ExecError for a missing executable.
func IsNotFound(err error) bool {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.NotFound()
	}
	return errors.Is(err, exec.ErrNotFound)
}

// IsPermissionDenied reports whether err is an ExecError caused by privileges.
func IsPermissionDenied(err error) bool {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.PermissionDenied()
	}
	return errors.Is(err, os.ErrPermission)
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
