package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/aschepis/backscratcher/skillloop/skill"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	lop "github.com/samber/lo/parallel"
)

// DefaultMaxTurns caps the number of model calls in one run.
const DefaultMaxTurns = 20

// ToolInvoker runs a single tool call. *skill.Invoker implements it.
type ToolInvoker interface {
	Invoke(ctx context.Context, call llm.ToolUseBlock, cfg skill.RetryConfig) (*skill.Result, error)
}

// Recorder persists each message as it is appended to a run.
type Recorder interface {
	Record(ctx context.Context, runID string, seq int, msg llm.Message) error
}

// Options tune a run.
type Options struct {
	MaxTurns      int
	Seed          *int
	MaxTokens     int64
	Temperature   *float64
	ParallelTools bool
	Retry         skill.RetryConfig
	Recorder      Recorder // Optional
}

// DefaultOptions returns options with the default turn cap and retry policy.
func DefaultOptions() Options {
	return Options{
		MaxTurns: DefaultMaxTurns,
		Retry:    skill.DefaultRetryConfig(),
	}
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	RunID       string
	FinalText   string
	Messages    []llm.Message
	Turns       int // model calls made
	Invocations int
	Failures    int // invocations that ended in an error payload
	State       State
}

// Orchestrator drives the model/tool loop.
type Orchestrator struct {
	client  llm.Client
	invoker ToolInvoker
	model   string
	opts    Options
	logger  zerolog.Logger
}

// NewOrchestrator creates an Orchestrator. Zero-valued MaxTurns and Retry
// fall back to their defaults.
func NewOrchestrator(logger zerolog.Logger, client llm.Client, invoker ToolInvoker, model string, opts Options) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required for Orchestrator")
	}
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required for Orchestrator")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required for Orchestrator")
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = skill.DefaultRetryConfig()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Orchestrator{
		client:  client,
		invoker: invoker,
		model:   model,
		opts:    opts,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// toolCallKey identifies repeated identical tool calls.
type toolCallKey struct {
	toolName string
	input    string // compacted JSON arguments
}

// run holds the mutable state of one Run call.
type run struct {
	id      string
	conv    *Conversation
	state   *stateMachine
	repeats map[toolCallKey]int
	result  RunResult
	logger  zerolog.Logger
}

// Run drives the conversation seeded with seed until the model answers
// without requesting tools. catalog is sent with every model call.
//
// Errors are *ModelCallError for model failures, *MaxTurnsError when the
// turn cap is hit, a wrapped context error on cancellation, or
// ErrInvalidConversation for a malformed seed.
func (o *Orchestrator) Run(ctx context.Context, seed []llm.Message, catalog []llm.ToolSpec) (*RunResult, error) {
	id := uuid.NewString()
	logger := o.logger.With().Str("run_id", id).Logger()
	r := &run{
		id:      id,
		state:   newStateMachine(logger),
		repeats: make(map[toolCallKey]int),
		result:  RunResult{RunID: id},
		logger:  logger,
	}

	conv, err := NewConversation()
	if err != nil {
		return nil, err
	}
	r.conv = conv
	for _, msg := range seed {
		if err := o.append(ctx, r, msg); err != nil {
			r.state.fail()
			return nil, err
		}
	}

	logger.Info().Str("model", o.model).Int("seed_messages", len(seed)).Int("tools", len(catalog)).Msg("Starting run")

	for turn := 1; turn <= o.opts.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			r.state.fail()
			logger.Warn().Err(err).Int("turn", turn).Msg("Run cancelled")
			return nil, fmt.Errorf("run cancelled before turn %d: %w", turn, err)
		}

		req := &llm.Request{
			Model:       o.model,
			Messages:    r.conv.Messages(),
			Tools:       catalog,
			Seed:        o.opts.Seed,
			MaxTokens:   o.opts.MaxTokens,
			Temperature: o.opts.Temperature,
		}
		r.result.Turns = turn

		resp, err := o.client.Synchronous(ctx, req)
		if err == nil && resp == nil {
			err = errors.New("empty response")
		}
		if err != nil {
			r.state.fail()
			logger.Error().Err(err).Int("turn", turn).Msg("Model call failed")
			return nil, &ModelCallError{Turn: turn, Err: err}
		}

		if !resp.RequiresToolCalls() {
			final := llm.Message{
				Role: llm.RoleAssistant,
				Content: lo.Filter(resp.Content, func(b llm.ContentBlock, _ int) bool {
					return b.Type != llm.ContentBlockTypeToolUse
				}),
			}
			if err := o.append(ctx, r, final); err != nil {
				r.state.fail()
				return nil, err
			}
			if err := r.state.transition(StateDone); err != nil {
				return nil, err
			}
			r.result.FinalText = final.Text()
			r.result.Messages = r.conv.Messages()
			r.result.State = r.state.State()
			logger.Info().
				Int("turns", r.result.Turns).
				Int("invocations", r.result.Invocations).
				Int("failures", r.result.Failures).
				Str("stop_reason", resp.StopReason).
				Msg("Run finished")
			return &r.result, nil
		}

		calls := resp.ToolUses()
		// The assistant turn is recorded before any tool runs.
		if err := o.append(ctx, r, llm.Message{Role: llm.RoleAssistant, Content: resp.Content}); err != nil {
			r.state.fail()
			return nil, err
		}
		if err := r.state.transition(StateExecutingTools); err != nil {
			return nil, err
		}

		o.trackRepeats(r, calls)
		for _, result := range o.dispatch(ctx, calls) {
			r.result.Invocations++
			if result.IsError {
				r.result.Failures++
			}
			if err := o.append(ctx, r, llm.NewToolResultMessage(result)); err != nil {
				r.state.fail()
				return nil, err
			}
		}

		if err := r.state.transition(StateAwaitingModel); err != nil {
			return nil, err
		}
	}

	r.state.fail()
	maxErr := &MaxTurnsError{MaxTurns: o.opts.MaxTurns, Repeated: repeatedCalls(r.repeats)}
	logger.Error().Err(maxErr).Msg("Run exceeded turn limit")
	return nil, maxErr
}

// dispatch invokes every call and returns the results in call order.
func (o *Orchestrator) dispatch(ctx context.Context, calls []llm.ToolUseBlock) []llm.ToolResultBlock {
	invoke := func(call llm.ToolUseBlock, _ int) llm.ToolResultBlock {
		return o.invoke(ctx, call)
	}
	if o.opts.ParallelTools && len(calls) > 1 {
		return lop.Map(calls, invoke)
	}
	return lo.Map(calls, invoke)
}

// invoke runs one call and renders its outcome as a tool result. Failures
// become error payloads for the model rather than run errors.
func (o *Orchestrator) invoke(ctx context.Context, call llm.ToolUseBlock) llm.ToolResultBlock {
	logger := o.logger.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	res, err := o.invoker.Invoke(ctx, call, o.opts.Retry)
	if err == nil && res == nil {
		err = errors.New("invoker returned no result")
	}
	if err != nil {
		var skillErr *skill.Error
		if !errors.As(err, &skillErr) {
			skillErr = skill.Classify(err)
		}
		logger.Warn().Str("kind", string(skillErr.Kind)).Int("attempts", skillErr.Attempts).Err(err).Msg("Tool call failed")
		return llm.ToolResultBlock{
			ToolCallID: call.ID,
			Content:    string(skillErr.Payload()),
			IsError:    true,
		}
	}

	logger.Debug().Int("attempts", res.Attempts).Msg("Tool call succeeded")
	return llm.ToolResultBlock{
		ToolCallID: call.ID,
		Content:    string(res.Output),
	}
}

// append adds msg to the run's conversation and hands it to the recorder.
// Recording failures are logged and otherwise ignored.
func (o *Orchestrator) append(ctx context.Context, r *run, msg llm.Message) error {
	if err := r.conv.Append(msg); err != nil {
		return err
	}
	if o.opts.Recorder == nil {
		return nil
	}
	seq := r.conv.Len() - 1
	if err := o.opts.Recorder.Record(context.WithoutCancel(ctx), r.id, seq, msg); err != nil {
		r.logger.Warn().Err(err).Int("seq", seq).Msg("failed to record message")
	}
	return nil
}

func (o *Orchestrator) trackRepeats(r *run, calls []llm.ToolUseBlock) {
	for _, call := range calls {
		key := toolCallKey{toolName: call.Name, input: compactJSON(call.Arguments)}
		r.repeats[key]++
		if n := r.repeats[key]; n > 1 {
			r.logger.Warn().
				Str("toolName", key.toolName).
				Str("input", key.input).
				Int("count", n).
				Msg("Model repeated an identical tool call")
		}
	}
}

func repeatedCalls(counts map[toolCallKey]int) []RepeatedCall {
	var out []RepeatedCall
	for key, n := range counts {
		if n > 1 {
			out = append(out, RepeatedCall{Name: key.toolName, Arguments: key.input, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
