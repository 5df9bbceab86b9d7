package workflow

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrNoData means a step's required upstream data is empty. It drives
// auto-recovery and is never shown to the user.
var ErrNoData = eris.New("workflow: required upstream data is empty")

// ErrStepOrder is returned when an operation does not apply to the current step.
var ErrStepOrder = eris.New("workflow: operation not valid at current step")

// InputError wraps a rejected step payload.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("workflow: invalid %s input: %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
