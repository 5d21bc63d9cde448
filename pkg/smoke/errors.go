package smoke

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a polled condition never held within its window.
	ErrTimeout = errors.New("timed out")

	// ErrNotFound is returned when a required selector matched nothing.
	ErrNotFound = errors.New("element not found")

	// ErrAssertion is the sentinel every AssertionError unwraps to.
	ErrAssertion = errors.New("assertion failed")
)

// AssertionError reports an observed value that differs from the expected one.
type AssertionError struct {
	Subject  string // what was checked, e.g. `#name text`
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s to equal %q, got %q", e.Subject, e.Expected, e.Actual)
}

func (e *AssertionError) Unwrap() error { return ErrAssertion }

// StepError ties a failure to the scenario step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the step name carried by err, or "" if err did not come
// from a scenario step.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
