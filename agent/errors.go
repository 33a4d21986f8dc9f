package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMaxTurnsExceeded matches every *MaxTurnsError.
var ErrMaxTurnsExceeded = errors.New("max turns exceeded")

// RepeatedCall is a tool call the model issued more than once with identical arguments.
type RepeatedCall struct {
	Name      string
	Arguments string
	Count     int
}

// MaxTurnsError is returned when the model keeps requesting tools past the turn cap.
type MaxTurnsError struct {
	MaxTurns int
	Repeated []RepeatedCall
}

func (e *MaxTurnsError) Error() string {
	msg := fmt.Sprintf("tool loop exceeded maximum iterations (%d)", e.MaxTurns)
	if len(e.Repeated) == 0 {
		return msg
	}
	parts := make([]string, 0, len(e.Repeated))
	for _, r := range e.Repeated {
		parts = append(parts, fmt.Sprintf("%s%s x%d", r.Name, r.Arguments, r.Count))
	}
	return msg + "; repeated calls: " + strings.Join(parts, ", ")
}

func (e *MaxTurnsError) Is(target error) bool {
	return target == ErrMaxTurnsExceeded
}

// ModelCallError is returned when the model completion call fails. Model
// failures end the run; they are never fed back to the model.
type ModelCallError struct {
	Turn int
	Err  error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed on turn %d: %v", e.Turn, e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}
