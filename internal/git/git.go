package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/splax/peephost/internal/system"
)

// Clone clones the repository into the provided destination directory.
func Clone(ctx context.Context, runner system.Runner, repoURL, dest string) error {
	if repoURL == "" {
		return errors.New("repository URL cannot be empty")
	}
	if dest == "" {
		return errors.New("destination cannot be empty")
	}
	cmd := system.Cmd("git", "clone", "--depth", "1", repoURL, ".")
	cmd.Dir = dest
	// Prevent git from prompting for credentials interactively.
	cmd.Env = []string{"GIT_TERMINAL_PROMPT=0"}
	if output, err := runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, output)
	}
	return nil
}
