package skill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Result is a successful invocation.
type Result struct {
	ToolCallID string
	Output     json.RawMessage
	Attempts   int
}

// Invoker validates tool calls against a catalog and runs them on an executor
// with per-attempt timeouts and exponential retry. It holds no per-call state
// and is safe for concurrent use.
type Invoker struct {
	catalog  *Catalog
	executor Executor
	newTimer TimerFactory
	logger   zerolog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithTimerFactory replaces the timer used to wait between attempts.
func WithTimerFactory(f TimerFactory) InvokerOption {
	return func(inv *Invoker) {
		inv.newTimer = f
	}
}

// NewInvoker creates an Invoker.
func NewInvoker(catalog *Catalog, executor Executor, logger zerolog.Logger, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		catalog:  catalog,
		executor: executor,
		newTimer: newRealTimer,
		logger:   logger.With().Str("component", "skill_invoker").Logger(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Catalog returns the catalog calls are validated against.
func (inv *Invoker) Catalog() *Catalog {
	return inv.catalog
}

// Invoke runs a single tool call. Any failure is returned as *Error:
// validation problems before the first attempt, the classified error of a
// non-retryable attempt, or a retry error wrapping the last failure once
// every attempt is used.
func (inv *Invoker) Invoke(ctx context.Context, call llm.ToolUseBlock, cfg RetryConfig) (*Result, error) {
	logger := inv.logger.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	if err := cfg.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid retry config", Cause: err}
	}
	args, err := inv.catalog.Validate(call.Name, call.Arguments)
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected tool call")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		failure := Classify(err)
		failure.Message = "invocation cancelled before first attempt"
		return nil, failure
	}

	var (
		attempts int
		output   json.RawMessage
		last     *Error
	)

	operation := func() error {
		attempts++
		out, err := inv.attempt(ctx, call.Name, args, cfg.PerAttemptTimeout)
		if err == nil {
			output = out
			return nil
		}

		last = Classify(err)
		logger.Warn().Int("attempt", attempts).Str("kind", string(last.Kind)).Err(err).Msg("Skill attempt failed")
		if ctx.Err() != nil || !cfg.ShouldRetry(last) {
			return backoff.Permanent(last)
		}
		return last
	}

	notify := func(err error, wait time.Duration) {
		logger.Debug().Int("attempt", attempts).Dur("wait", wait).Msg("Retrying skill")
	}

	b := backoff.WithContext(newSchedule(cfg), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, inv.newTimer()); err == nil {
		logger.Debug().Int("attempts", attempts).Msg("Skill succeeded")
		return &Result{ToolCallID: call.ID, Output: output, Attempts: attempts}, nil
	}

	if last == nil {
		// The context ended before the first attempt could start.
		failure := Classify(ctx.Err())
		failure.Message = "invocation cancelled before first attempt"
		return nil, failure
	}

	failure := *last
	failure.Attempts = attempts
	if ctx.Err() == nil && cfg.ShouldRetry(last) && attempts >= cfg.MaxAttempts {
		logger.Error().Int("attempts", attempts).Str("last_kind", string(last.Kind)).Msg("Skill retries exhausted")
		return nil, &Error{
			Kind:     KindRetry,
			Message:  fmt.Sprintf("skill %s failed after %d attempts", call.Name, attempts),
			Attempts: attempts,
			Cause:    &failure,
		}
	}
	return nil, &failure
}

// attempt runs one execution bounded by timeout. The result is abandoned if
// the executor does not return by the deadline.
func (inv *Invoker) attempt(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := inv.executor.Execute(attemptCtx, name, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil && !json.Valid(o.out) {
			return nil, &StatusError{StatusCode: http.StatusBadGateway, Body: "skill returned invalid JSON"}
		}
		return o.out, o.err
	case <-attemptCtx.Done():
		err := attemptCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("attempt exceeded %s: %w", timeout, err)
		}
		return nil, err
	}
}
