package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/aschepis/backscratcher/skillloop/skill"
	"github.com/rs/zerolog"
)

// scriptedClient answers model calls from a function and keeps every request.
type scriptedClient struct {
	mu       sync.Mutex
	requests []*llm.Request
	respond  func(turn int, req *llm.Request) (*llm.Response, error)
}

func (c *scriptedClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	turn := len(c.requests)
	c.mu.Unlock()
	return c.respond(turn, req)
}

func (c *scriptedClient) Requests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.Request(nil), c.requests...)
}

// replies returns a client that plays responses in order and fails past the end.
func replies(responses ...*llm.Response) *scriptedClient {
	return &scriptedClient{respond: func(turn int, _ *llm.Request) (*llm.Response, error) {
		if turn > len(responses) {
			return nil, fmt.Errorf("unexpected model call %d", turn)
		}
		return responses[turn-1], nil
	}}
}

func toolCallResponse(calls ...llm.ToolUseBlock) *llm.Response {
	return &llm.Response{
		Content:    llm.NewAssistantMessage("", calls).Content,
		StopReason: llm.StopReasonToolCalls,
	}
}

func finalResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}},
		StopReason: llm.StopReasonStop,
	}
}

func call(id, name, args string) llm.ToolUseBlock {
	return llm.ToolUseBlock{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// invokerFunc adapts a function to ToolInvoker.
type invokerFunc func(ctx context.Context, call llm.ToolUseBlock, cfg skill.RetryConfig) (*skill.Result, error)

func (f invokerFunc) Invoke(ctx context.Context, call llm.ToolUseBlock, cfg skill.RetryConfig) (*skill.Result, error) {
	return f(ctx, call, cfg)
}

// echoInvoker succeeds with the call's id and counts invocations.
type echoInvoker struct {
	mu    sync.Mutex
	calls []string
}

func (e *echoInvoker) Invoke(ctx context.Context, call llm.ToolUseBlock, cfg skill.RetryConfig) (*skill.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call.ID)
	e.mu.Unlock()
	out, _ := json.Marshal(map[string]string{"id": call.ID})
	return &skill.Result{ToolCallID: call.ID, Output: out, Attempts: 1}, nil
}

func (e *echoInvoker) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type recordedMessage struct {
	runID string
	seq   int
	msg   llm.Message
}

// memoryRecorder keeps recorded messages; err, when set, is returned from every Record.
type memoryRecorder struct {
	mu      sync.Mutex
	entries []recordedMessage
	err     error
}

func (r *memoryRecorder) Record(ctx context.Context, runID string, seq int, msg llm.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, recordedMessage{runID: runID, seq: seq, msg: msg})
	return nil
}

func seedMessages() []llm.Message {
	return []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "You are a helpful assistant."),
		llm.NewTextMessage(llm.RoleUser, "What's the weather in SF?"),
	}
}

func newTestOrchestrator(t *testing.T, client llm.Client, invoker ToolInvoker, opts Options) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(zerolog.Nop(), client, invoker, "gpt-4", opts)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	return o
}
