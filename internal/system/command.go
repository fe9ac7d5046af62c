package system

import (
	"errors"
	"fmt"

	"github.com/google/shlex"
)

// ParseCommand splits a shell-like command line into a Command using POSIX
// quoting rules. A leading "sudo" marks the command privileged instead of
// becoming the executable.
func ParseCommand(line string) (Command, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("split %q: %w", line, err)
	}
	if len(tokens) == 0 {
		return Command{}, errors.New("empty command")
	}
	privileged := false
	if tokens[0] == "sudo" {
		privileged = true
		tokens = tokens[1:]
		if len(tokens) == 0 {
			return Command{}, errors.New("empty command after sudo")
		}
	}
	return Command{Name: tokens[0], Args: tokens[1:], Privileged: privileged}, nil
}
