package agent

import (
	"context"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/rs/zerolog"
)

// LoggingMiddleware logs every model call.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llmLoggingMiddleware").Logger(),
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Msg("Calling LLM")
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	event := m.logger.Debug().
		Str("model", req.Model).
		Str("stop_reason", resp.StopReason).
		Int("tool_calls", len(resp.ToolUses()))
	if resp.Usage != nil {
		event = event.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
	}
	event.Msg("LLM responded")
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	event := m.logger.Warn().Err(err).Str("model", req.Model).Str("error_type", string(llm.TypeOf(err)))
	if llm.IsRateLimitError(err) {
		if retryAfter := llm.RetryAfterOf(err); retryAfter != nil {
			event = event.Dur("retry_after", *retryAfter)
		}
	}
	event.Msg("LLM call failed")
	return err
}

var _ llm.Middleware = (*LoggingMiddleware)(nil)
