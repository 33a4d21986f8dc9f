package openai

import (
	"fmt"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat message format.
func ToOpenAIMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for i, msg := range msgs {
		openaiMsg, err := ToOpenAIMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		result = append(result, openaiMsg)
	}
	return result, nil
}

// ToOpenAIMessage converts a single llm.Message to OpenAI format.
// Tool messages map to the tool role and carry the id of the call they answer.
func ToOpenAIMessage(msg llm.Message) (openai.ChatCompletionMessage, error) {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Text()}, nil
	case llm.RoleUser:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Text()}, nil
	case llm.RoleAssistant:
		out := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: msg.Text(),
		}
		out.ToolCalls = lo.Map(msg.ToolUses(), func(tu llm.ToolUseBlock, _ int) openai.ToolCall {
			return ToOpenAIToolCall(tu)
		})
		return out, nil
	case llm.RoleTool:
		result := msg.ToolResult()
		if result == nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("tool message without tool result")
		}
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    result.Content,
			ToolCallID: result.ToolCallID,
		}, nil
	default:
		return openai.ChatCompletionMessage{}, fmt.Errorf("unsupported role %q", msg.Role)
	}
}

// ToOpenAIToolCall converts a tool use block back into the wire form the model emitted.
func ToOpenAIToolCall(tu llm.ToolUseBlock) openai.ToolCall {
	return openai.ToolCall{
		ID:   tu.ID,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      tu.Name,
			Arguments: string(tu.Arguments),
		},
	}
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function format.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
		return ToOpenAITool(spec)
	})
}

// ToOpenAITool converts a single llm.ToolSpec to OpenAI Tool format.
func ToOpenAITool(spec llm.ToolSpec) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Schema.AsMap(),
		},
	}
}

// FromOpenAIToolCall converts an OpenAI tool call response to llm.ToolUseBlock.
// Arguments are kept verbatim, even when they are not valid JSON.
func FromOpenAIToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	return &llm.ToolUseBlock{
		ID:        toolCall.ID,
		Name:      toolCall.Function.Name,
		Arguments: []byte(toolCall.Function.Arguments),
	}
}
