package teardown

import (
	"fmt"
	"strings"
)

// StepError is the failure of one teardown step.
type StepError struct {
	Project string
	Step    string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("teardown %s: step %s: %v", e.Project, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// TeardownError reports a teardown that completed with residue. The
// registry entry has been removed unless the registry step itself failed.
type TeardownError struct {
	Project string
	Failed  []*StepError
}

func (e *TeardownError) Error() string {
	steps := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		steps[i] = f.Step
	}
	return fmt.Sprintf("teardown %s left residue: failed steps %s", e.Project, strings.Join(steps, ", "))
}

// Unwrap exposes the step errors to errors.Is and errors.As.
func (e *TeardownError) Unwrap() []error {
	out := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f
	}
	return out
}
