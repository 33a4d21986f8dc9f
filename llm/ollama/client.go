package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/ollama/ollama/api"
)

// OllamaClient implements the llm.Client interface for Ollama's API.
type OllamaClient struct {
	client *api.Client
	model  string // Default model to use if not specified in request
}

// NewOllamaClient creates a new OllamaClient.
// If host is empty, it will use the default from environment (OLLAMA_HOST or http://localhost:11434).
func NewOllamaClient(host, model string) (*OllamaClient, error) {
	var client *api.Client
	var err error

	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &OllamaClient{
		client: client,
		model:  model,
	}, nil
}

// parseHost parses a host string into a URL.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Synchronous implements llm.Client.Synchronous.
func (c *OllamaClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	ollamaMsgs, err := ToOllamaMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: ollamaMsgs,
		Stream:   new(bool), // false for non-streaming
		Options:  make(map[string]interface{}),
		Tools:    ToOllamaTools(req.Tools),
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.Seed != nil {
		chatReq.Options["seed"] = *req.Seed
	}

	var chatResp api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertOllamaError(err)
	}

	content := make([]llm.ContentBlock, 0, len(chatResp.Message.ToolCalls)+1)
	if chatResp.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: chatResp.Message.Content,
		})
	}
	for _, toolCall := range chatResp.Message.ToolCalls {
		toolUse, err := FromOllamaToolCall(toolCall)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool call: %w", err)
		}
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: toolUse,
		})
	}

	// Ollama reports "stop" even when it emitted tool calls.
	stopReason := llm.StopReasonStop
	switch {
	case len(chatResp.Message.ToolCalls) > 0:
		stopReason = llm.StopReasonToolCalls
	case chatResp.DoneReason == "length":
		stopReason = llm.StopReasonMaxTokens
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
		},
		StopReason: stopReason,
	}, nil
}

func convertOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return llm.NewStatusError(llm.ProviderOllama, statusErr.StatusCode, statusErr.ErrorMessage, nil, err)
	}
	return llm.NewTransportError(llm.ProviderOllama, err)
}

var _ llm.Client = (*OllamaClient)(nil)
