package ollama

import (
	"encoding/json"
	"fmt"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// ToOllamaMessages converts llm.Messages to Ollama chat message format.
// Ollama identifies tool results by tool name rather than call id, so the
// names of earlier tool calls are tracked to label each tool message.
func ToOllamaMessages(msgs []llm.Message) ([]api.Message, error) {
	callNames := make(map[string]string)
	result := make([]api.Message, 0, len(msgs))
	for i, msg := range msgs {
		for _, tu := range msg.ToolUses() {
			callNames[tu.ID] = tu.Name
		}
		ollamaMsg, err := ToOllamaMessage(msg, callNames)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		result = append(result, ollamaMsg)
	}
	return result, nil
}

// ToOllamaMessage converts a single llm.Message to Ollama format.
func ToOllamaMessage(msg llm.Message, callNames map[string]string) (api.Message, error) {
	switch msg.Role {
	case llm.RoleSystem, llm.RoleUser:
		return api.Message{Role: string(msg.Role), Content: msg.Text()}, nil
	case llm.RoleAssistant:
		toolCalls := make([]api.ToolCall, 0, len(msg.ToolUses()))
		for _, tu := range msg.ToolUses() {
			args, err := toolCallArguments(tu.Arguments)
			if err != nil {
				return api.Message{}, fmt.Errorf("tool call %s: %w", tu.ID, err)
			}
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tu.Name,
					Arguments: args,
				},
			})
		}
		return api.Message{Role: string(msg.Role), Content: msg.Text(), ToolCalls: toolCalls}, nil
	case llm.RoleTool:
		tr := msg.ToolResult()
		if tr == nil {
			return api.Message{}, fmt.Errorf("tool message without tool result")
		}
		return api.Message{
			Role:     string(llm.RoleTool),
			Content:  tr.Content,
			ToolName: callNames[tr.ToolCallID],
		}, nil
	default:
		return api.Message{}, fmt.Errorf("unsupported role %q", msg.Role)
	}
}

// toolCallArguments decodes echoed arguments. Malformed arguments are sent as
// an empty object; the failure was already reported back to the model.
func toolCallArguments(raw json.RawMessage) (api.ToolCallFunctionArguments, error) {
	args := make(api.ToolCallFunctionArguments)
	if len(raw) == 0 || !json.Valid(raw) {
		return args, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return args, nil
	}
	for k, v := range decoded {
		args[k] = v
	}
	return args, nil
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function format.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	if len(specs) == 0 {
		return nil
	}
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		return ToOllamaTool(spec)
	})
}

// ToOllamaTool converts a single llm.ToolSpec to Ollama Tool format.
// Only the property type survives the conversion; Ollama ignores the rest.
func ToOllamaTool(spec llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
	for k, v := range spec.Schema.Properties {
		prop := api.ToolProperty{Type: []string{"string"}}
		if propMap, ok := v.(map[string]interface{}); ok {
			if propType, ok := propMap["type"].(string); ok {
				prop.Type = []string{propType}
			}
			if desc, ok := propMap["description"].(string); ok {
				prop.Description = desc
			}
		}
		properties[k] = prop
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       schemaType,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}

// FromOllamaToolCall converts an Ollama tool call response to llm.ToolUseBlock.
// Ollama does not assign call ids, so a fresh one is generated.
func FromOllamaToolCall(toolCall api.ToolCall) (*llm.ToolUseBlock, error) {
	args := toolCall.Function.Arguments
	if args == nil {
		args = make(api.ToolCallFunctionArguments)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
	}

	return &llm.ToolUseBlock{
		ID:        "call_" + uuid.NewString(),
		Name:      toolCall.Function.Name,
		Arguments: raw,
	}, nil
}
