package coord

import (
	"errors"
	"fmt"
)

// ErrInvalidStep is returned when a step is neither "global" nor a
// non-negative integer.
var ErrInvalidStep = errors.New("step must be \"global\" or a non-negative integer")

// StepError records the rejected step value.
type StepError struct {
	Value string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%v: got %q", ErrInvalidStep, e.Value)
}

func (e *StepError) Unwrap() error {
	return ErrInvalidStep
}
