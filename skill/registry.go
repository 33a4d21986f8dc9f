package skill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Handler implements a skill in-process.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Registry maps skill names to in-process handlers. It is an Executor.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With().Str("component", "skill_registry").Logger(),
	}
}

// Register registers a handler for a skill name, replacing any previous one.
func (r *Registry) Register(name string, h Handler) {
	r.logger.Debug().Str("name", name).Msg("Registering skill handler")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names returns the registered skill names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.handlers)
	sort.Strings(names)
	return names
}

// Execute dispatches a call to its handler and serializes the result.
// Handler failures that are not transport or context errors are reported as a
// 500 status, the way a skill service would report them.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error().Str("skill", name).Msg("Unknown skill requested")
		return nil, &StatusError{StatusCode: http.StatusNotFound, Body: fmt.Sprintf("unknown skill: %s", name)}
	}

	r.logger.Debug().Str("skill", name).RawJSON("args", rawOrNull(args)).Msg("Executing skill")
	result, err := h(ctx, args)
	if err != nil {
		r.logger.Warn().Str("skill", name).Err(err).Msg("Skill returned error")
		return nil, asHandlerError(err)
	}

	out, err := marshalResult(result)
	if err != nil {
		return nil, &StatusError{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}
	r.logger.Debug().Str("skill", name).Str("result", truncate(string(out), 500)).Msg("Skill returned result")
	return out, nil
}

func asHandlerError(err error) error {
	var statusErr *StatusError
	var skillErr *Error
	var netErr net.Error
	switch {
	case errors.As(err, &statusErr), errors.As(err, &skillErr), errors.As(err, &netErr):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return &StatusError{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}
}

func marshalResult(result any) (json.RawMessage, error) {
	switch v := result.(type) {
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("skill returned invalid JSON")
		}
		return v, nil
	case nil:
		return json.RawMessage("null"), nil
	default:
		return json.Marshal(v)
	}
}

func rawOrNull(b json.RawMessage) []byte {
	if len(b) == 0 || !json.Valid(b) {
		return []byte("null")
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}

var _ Executor = (*Registry)(nil)
