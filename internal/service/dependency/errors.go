package dependency

import (
	"fmt"
	"strings"
)

// Error reports a tool that could not be made available.
type Error struct {
	Tool     string
	Packages []string
	Stage    string
	Err      error
}

func (e *Error) Error() string {
	if len(e.Packages) == 0 {
		return fmt.Sprintf("dependency %s: %s: %v", e.Tool, e.Stage, e.Err)
	}
	return fmt.Sprintf("dependency %s (%s): %s: %v", e.Tool, strings.Join(e.Packages, ", "), e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
