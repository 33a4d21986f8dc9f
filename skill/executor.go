package skill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Executor runs a named skill on some execution surface.
// A reached endpoint that answers with an error status reports *StatusError;
// anything else is treated as a transport failure by Classify.
type Executor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return f(ctx, name, args)
}

// StatusError reports that the execution surface answered with an error status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("skill service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("skill service returned status %d: %s", e.StatusCode, e.Body)
}

// Classify maps an executor failure to a kinded *Error.
// Errors that are already *Error pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var skillErr *Error
	if errors.As(err, &skillErr) {
		return skillErr
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Kind:         KindAPIStatus,
			Message:      "skill returned an error status",
			StatusCode:   statusErr.StatusCode,
			ResponseBody: statusErr.Body,
			Cause:        err,
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Message: "skill attempt timed out", Cause: err}
	}

	return &Error{Kind: KindConnection, Message: "skill execution surface unreachable", Cause: err}
}
