package skill

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	mu    *sync.Mutex
	waits *[]time.Duration
	c     chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	*t.waits = append(*t.waits, d)
	t.mu.Unlock()
	t.c <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

type timerRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *timerRecorder) factory() backoff.Timer {
	return &fakeTimer{mu: &r.mu, waits: &r.waits, c: make(chan time.Time, 1)}
}

func (r *timerRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.waits))
	copy(out, r.waits)
	return out
}

// countingExecutor returns scripted outcomes and counts calls.
type countingExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

func (e *countingExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()
	return e.fn(call, ctx, name, args)
}

func (e *countingExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func weatherCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(
		llm.ToolSpec{
			Name:        "get_location",
			Description: "Get the user's current city",
			Schema:      llm.ToolSchema{Type: "object"},
		},
		llm.ToolSpec{
			Name:        "get_weather",
			Description: "Get the current weather for a city",
			Schema: llm.ToolSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"city": map[string]interface{}{"type": "string"},
				},
				Required: []string{"city"},
			},
		},
	)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}

func fastConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.PerAttemptTimeout = time.Second
	return cfg
}

func newTestInvoker(t *testing.T, exec Executor, rec *timerRecorder) *Invoker {
	t.Helper()
	return NewInvoker(weatherCatalog(t), exec, zerolog.Nop(), WithTimerFactory(rec.factory))
}
