package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is reported for rate limits when the provider gives no hint.
const DefaultRetryAfter = 60 * time.Second

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge ErrorType = "request_too_large"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeProvider        ErrorType = "provider"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error is a failed model call, normalised across providers.
type Error struct {
	Type        ErrorType
	Provider    string
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.ProviderErr != nil {
		b.WriteString(": ")
		b.WriteString(e.ProviderErr.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// TypeOf reports the type of the first *Error in err's chain, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

func IsRateLimitError(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}

func IsRetryableError(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Retryable
}

// RetryAfterOf returns the provider's retry hint, if err carries one.
func RetryAfterOf(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewStatusError classifies a provider response by HTTP status.
// 429 is a rate limit, 413 a request that will never fit, other 4xx an invalid
// request, and 5xx a retryable provider failure. header may be nil; when it
// carries Retry-After that value replaces DefaultRetryAfter.
func NewStatusError(provider string, status int, detail string, header http.Header, err error) *Error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	e := &Error{
		Provider:    provider,
		Message:     fmt.Sprintf("status %d: %s", status, detail),
		StatusCode:  status,
		ProviderErr: err,
	}

	switch {
	case status == http.StatusTooManyRequests:
		e.Type = ErrorTypeRateLimit
		e.Retryable = true
		retryAfter := parseRetryAfter(header)
		e.RetryAfter = &retryAfter
	case status == http.StatusRequestEntityTooLarge:
		e.Type = ErrorTypeRequestTooLarge
	case status >= 400 && status < 500:
		e.Type = ErrorTypeInvalidRequest
	default:
		e.Type = ErrorTypeProvider
		e.Retryable = status >= http.StatusInternalServerError
	}
	return e
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return DefaultRetryAfter
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return DefaultRetryAfter
}

// NewProviderError reports a malformed or empty provider response.
func NewProviderError(provider, message string, err error) *Error {
	return &Error{Type: ErrorTypeProvider, Provider: provider, Message: message, ProviderErr: err}
}

// NewTransportError classifies a failure that happened before the provider
// returned a status: deadline expiry becomes a timeout, anything carrying a
// net.Error becomes a network error, everything else a provider error.
func NewTransportError(provider string, err error) *Error {
	e := &Error{Provider: provider, Message: "request failed", ProviderErr: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		e.Type, e.Retryable = ErrorTypeTimeout, true
	case errors.As(err, &netErr):
		e.Type, e.Retryable = ErrorTypeNetwork, true
	default:
		e.Type = ErrorTypeProvider
	}
	return e
}
