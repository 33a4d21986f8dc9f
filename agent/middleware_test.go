package agent

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/rs/zerolog"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	client := llm.WrapWithMiddleware(replies(finalResponse("ok")), NewLoggingMiddleware(logger))
	resp, err := client.Synchronous(context.Background(), &llm.Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("Expected response to pass through, got %q", resp.Text())
	}

	out := buf.String()
	for _, want := range []string{"Calling LLM", "LLM responded", `"stop_reason":"stop"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log to contain %q, got %s", want, out)
		}
	}
}

func TestLoggingMiddleware_PassesErrorsThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	boom := errors.New("boom")
	failing := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return nil, boom
	})
	client := llm.WrapWithMiddleware(failing, NewLoggingMiddleware(logger))

	if _, err := client.Synchronous(context.Background(), &llm.Request{Model: "gpt-4"}); !errors.Is(err, boom) {
		t.Fatalf("Expected original error, got %v", err)
	}
	if !strings.Contains(buf.String(), "LLM call failed") {
		t.Errorf("Expected failure to be logged, got %s", buf.String())
	}
}

func TestLoggingMiddleware_LogsRetryAfter(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	limited := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return nil, llm.NewStatusError(llm.ProviderOpenAI, http.StatusTooManyRequests, "slow down", nil, nil)
	})
	client := llm.WrapWithMiddleware(limited, NewLoggingMiddleware(logger))

	if _, err := client.Synchronous(context.Background(), &llm.Request{Model: "gpt-4"}); !llm.IsRateLimitError(err) {
		t.Fatalf("Expected rate limit error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"retry_after"`) {
		t.Errorf("Expected retry_after to be logged, got %s", buf.String())
	}
}
