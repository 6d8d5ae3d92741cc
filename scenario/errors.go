package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// StepError wraps every scenario-fatal failure with enough context to
// reproduce it. Index is the step's position in Scenario.Steps, or -1 for
// failures outside a step (provisioning, session setup).
type StepError struct {
	Scenario string
	Index    int
	StepID   string
	Actor    string
	Err      error
}

func (e *StepError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("scenario %s: %s: %v", e.Scenario, e.StepID, e.Err)
	}
	return fmt.Sprintf("scenario %s: step %d (%s, actor %s): %v", e.Scenario, e.Index, e.StepID, e.Actor, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AssertionError is returned when a read or collected value does not match
// what the step expects.
type AssertionError struct {
	What string
	Got  any
	Want any
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: got %v, want %v", e.What, e.Got, e.Want)
}

// ValidationError lists every problem found by Scenario.Validate.
type ValidationError struct {
	Scenario string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scenario %s: invalid: %s", e.Scenario, strings.Join(e.Problems, "; "))
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
