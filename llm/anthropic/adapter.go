package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/samber/lo"
)

// ToMessageParams converts llm.Messages to Anthropic MessageParams.
// System messages are lifted out and returned joined, since the Messages API
// takes them as a separate parameter. Consecutive tool messages are folded into
// a single user message of tool_result blocks, which is the shape the API expects.
func ToMessageParams(msgs []llm.Message) (string, []anthropic.MessageParam, error) {
	var system []string
	result := make([]anthropic.MessageParam, 0, len(msgs))
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for i, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Text())
		case llm.RoleTool:
			tr := msg.ToolResult()
			if tr == nil {
				return "", nil, fmt.Errorf("message %d: tool message without tool result", i)
			}
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		case llm.RoleUser, llm.RoleAssistant:
			flush()
			param, err := ToMessageParam(msg)
			if err != nil {
				return "", nil, fmt.Errorf("message %d: %w", i, err)
			}
			result = append(result, param)
		default:
			return "", nil, fmt.Errorf("message %d: unsupported role %q", i, msg.Role)
		}
	}
	flush()

	return strings.Join(system, "\n\n"), result, nil
}

// ToMessageParam converts a user or assistant llm.Message to an Anthropic MessageParam.
func ToMessageParam(msg llm.Message) (anthropic.MessageParam, error) {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if block.Text != "" {
				contentBlocks = append(contentBlocks, anthropic.NewTextBlock(block.Text))
			}
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolUseBlock(
					block.ToolUse.ID,
					toolInput(block.ToolUse.Arguments),
					block.ToolUse.Name,
				))
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolResultBlock(
					block.ToolResult.ToolCallID,
					block.ToolResult.Content,
					block.ToolResult.IsError,
				))
			}
		}
	}

	switch msg.Role {
	case llm.RoleUser:
		return anthropic.NewUserMessage(contentBlocks...), nil
	case llm.RoleAssistant:
		return anthropic.NewAssistantMessage(contentBlocks...), nil
	default:
		return anthropic.MessageParam{}, fmt.Errorf("unsupported role %q", msg.Role)
	}
}

// toolInput echoes arguments back to the API. Anything that is not a JSON
// object is sent as an empty object so the request stays well-formed.
func toolInput(args json.RawMessage) any {
	var obj map[string]any
	if len(args) == 0 || json.Unmarshal(args, &obj) != nil || obj == nil {
		return map[string]any{}
	}
	return args
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec llm.ToolSpec) anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:        "object",
			Properties:  spec.Schema.Properties,
			Required:    spec.Schema.Required,
			ExtraFields: spec.Schema.ExtraFields,
		},
	}

	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(spec)
	})
}
