package skill

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a skill invocation failure.
type Kind string

const (
	// KindConnection means the execution surface could not be reached.
	KindConnection Kind = "connection"
	// KindTimeout means an attempt exceeded its per-attempt timeout.
	KindTimeout Kind = "timeout"
	// KindAPIStatus means the surface was reached but answered with an error status.
	KindAPIStatus Kind = "api_status"
	// KindRetry means every allowed attempt failed; Cause holds the last failure.
	KindRetry Kind = "retry"
	// KindValidation means the call was rejected before any attempt was made.
	KindValidation Kind = "validation"
)

// Error is the single error type returned by Invoker.Invoke.
type Error struct {
	Kind         Kind
	Message      string
	StatusCode   int    // api_status only
	ResponseBody string // api_status only
	Attempts     int
	Cause        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var skillErr *Error
	if errors.As(err, &skillErr) {
		return skillErr.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind.
// A retry error therefore matches both KindRetry and the kind of its last cause.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var skillErr *Error
		if !errors.As(err, &skillErr) {
			return false
		}
		if skillErr.Kind == kind {
			return true
		}
		err = skillErr.Cause
	}
	return false
}

type errorPayload struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Attempts   int    `json:"attempts"`
	Cause      *Kind  `json:"cause,omitempty"`
}

// Payload renders the error as the JSON object handed back to the model:
// {"error":{"kind":..,"message":..,"status_code":..,"attempts":..}}.
// For retry errors the status code and kind of the last failure are included.
func (e *Error) Payload() json.RawMessage {
	body := errorBody{
		Kind:       e.Kind,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Attempts:   e.Attempts,
	}
	var last *Error
	if e.Kind == KindRetry && errors.As(e.Cause, &last) {
		body.Cause = &last.Kind
		if body.StatusCode == 0 {
			body.StatusCode = last.StatusCode
		}
		body.Message = fmt.Sprintf("%s: %s", e.Message, last.Message)
	}
	out, err := json.Marshal(errorPayload{Error: body})
	if err != nil {
		// Only strings and ints are marshalled; this cannot fail.
		return json.RawMessage(`{"error":{"kind":"` + string(e.Kind) + `"}}`)
	}
	return out
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}
