package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/skillloop/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements the llm.Client interface for OpenAI's chat completions API
// and any endpoint compatible with it.
type OpenAIClient struct {
	client *openai.Client
	model  string // Default model to use if not specified in request
}

// NewOpenAIClient creates a new OpenAIClient.
// If apiKey is empty, it will return an error.
// If baseURL is empty, it will use the default OpenAI API endpoint.
func NewOpenAIClient(apiKey, baseURL, model, organization string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OpenAIClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError(llm.ProviderOpenAI, "response contained no choices", nil)
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: normalizeFinishReason(choice.FinishReason),
	}, nil
}

func (c *OpenAIClient) buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("model is required")
	}

	openaiMsgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: openaiMsgs,
		Seed:     req.Seed,
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		// Let the model decide when to use tools
		chatReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	return chatReq, nil
}

func normalizeFinishReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonLength:
		return llm.StopReasonMaxTokens
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return llm.StopReasonToolCalls
	default:
		return llm.StopReasonStop
	}
}

// convertOpenAIError maps go-openai failures onto llm.Error. APIError carries
// the decoded error body; RequestError only the status.
func convertOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewStatusError(llm.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message, nil, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewStatusError(llm.ProviderOpenAI, reqErr.HTTPStatusCode, "", nil, err)
	}
	return llm.NewTransportError(llm.ProviderOpenAI, err)
}

var _ llm.Client = (*OpenAIClient)(nil)
