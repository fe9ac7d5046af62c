// Package systemtest provides a scripted system.Runner for tests.
package systemtest

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/splax/peephost/internal/system"
)

// Response is what a scripted command returns.
type Response struct {
	Output string
	Err    error
}

// Handler computes a response for a command.
type Handler func(cmd system.Command) (string, error)

type script struct {
	prefix    string
	responses []Response
	handler   Handler
}

// Runner records every command. Commands matching a scripted prefix get the
// scripted response; with Local set, filesystem commands (mv, rm, ln, mkdir,
// chown) act on the real filesystem and everything else succeeds silently.
type Runner struct {
	Local bool

	mu      sync.Mutex
	scripts []*script
	calls   []system.Command
	stdins  map[int]string
}

// New returns a runner that simulates filesystem commands locally.
func New() *Runner {
	return &Runner{Local: true, stdins: map[int]string{}}
}

// On scripts the next response for commands starting with prefix. Repeated
// calls for the same prefix queue responses; the last one repeats.
func (r *Runner) On(prefix, output string, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.scripts {
		if s.prefix == prefix && s.handler == nil {
			s.responses = append(s.responses, Response{Output: output, Err: err})
			return r
		}
	}
	r.scripts = append(r.scripts, &script{prefix: prefix, responses: []Response{{Output: output, Err: err}}})
	return r
}

// OnFunc scripts commands starting with prefix with a handler.
func (r *Runner) OnFunc(prefix string, fn Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = append(r.scripts, &script{prefix: prefix, handler: fn})
	return r
}

// Run implements system.Runner.
func (r *Runner) Run(_ context.Context, cmd system.Command) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		r.stdins[len(r.calls)-1] = string(data)
	}
	line := Line(cmd)
	var match *script
	for _, s := range r.scripts {
		if strings.HasPrefix(line, s.prefix) && (match == nil || len(s.prefix) > len(match.prefix)) {
			match = s
		}
	}
	if match != nil && match.handler == nil {
		resp := match.responses[0]
		if len(match.responses) > 1 {
			match.responses = match.responses[1:]
		}
		r.mu.Unlock()
		return resp.Output, resp.Err
	}
	r.mu.Unlock()
	if match != nil {
		return match.handler(cmd)
	}
	if r.Local {
		return "", simulate(cmd)
	}
	return "", nil
}

// Calls returns every command line run so far, without the sudo prefix.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = Line(c)
	}
	return out
}

// Commands returns the raw recorded commands.
func (r *Runner) Commands() []system.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]system.Command(nil), r.calls...)
}

// Count returns how many recorded commands start with prefix.
func (r *Runner) Count(prefix string) int {
	n := 0
	for _, line := range r.Calls() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

// Stdin returns what was piped into the first command starting with prefix.
func (r *Runner) Stdin(prefix string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if strings.HasPrefix(Line(c), prefix) {
			return r.stdins[i]
		}
	}
	return ""
}

// Line renders a command without its privilege marker.
func Line(cmd system.Command) string {
	return strings.Join(append([]string{cmd.Name}, cmd.Args...), " ")
}

// Fail builds the error a command exiting 1 with output would produce.
func Fail(output string) error {
	return &system.ExecError{Output: output, ExitCode: 1, Err: errors.New("exit status 1")}
}

// Missing builds the error produced when the executable does not exist.
func Missing(name string) error {
	return &system.ExecError{Command: name, ExitCode: -1, Err: &exec.Error{Name: name, Err: exec.ErrNotFound}}
}

func simulate(cmd system.Command) error {
	args := cmd.Args
	switch cmd.Name {
	case "mv":
		args = stripFlags(args)
		if len(args) != 2 {
			return nil
		}
		if err := os.Rename(args[0], args[1]); err != nil {
			return Fail(err.Error())
		}
	case "rm":
		for _, p := range stripFlags(args) {
			if err := os.RemoveAll(p); err != nil {
				return Fail(err.Error())
			}
		}
	case "ln":
		args = stripFlags(args)
		if len(args) != 2 {
			return nil
		}
		_ = os.Remove(args[1])
		if err := os.Symlink(args[0], args[1]); err != nil {
			return Fail(err.Error())
		}
	case "mkdir":
		for _, p := range stripFlags(args) {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return Fail(err.Error())
			}
		}
	case "cp":
		args = stripFlags(args)
		if len(args) != 2 {
			return nil
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return Fail(err.Error())
		}
		if err := os.MkdirAll(filepath.Dir(args[1]), 0o755); err != nil {
			return Fail(err.Error())
		}
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			return Fail(err.Error())
		}
	}
	return nil
}

func stripFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

var _ system.Runner = (*Runner)(nil)
