package llm

import (
	"encoding/json"
	"strings"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Normalised stop reasons reported by every provider adapter.
const (
	StopReasonStop      = "stop"
	StopReasonToolCalls = "tool_calls"
	StopReasonMaxTokens = "max_tokens"
)

// Message represents a single message in a conversation.
// Tool messages carry exactly one ToolResult block; assistant messages may carry
// text and any number of ToolUse blocks.
type Message struct {
	Role    MessageRole    `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a single content block within a message.
// It can be text, a tool use, or a tool result.
type ContentBlock struct {
	Type       ContentBlockType `json:"type"`
	Text       string           `json:"text,omitempty"`        // For text blocks
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`    // For tool use blocks
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"` // For tool result blocks
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ToolUseBlock represents a tool invocation request from the assistant.
// Arguments holds the JSON text exactly as the model produced it; it is parsed
// and validated by the skill invoker, not here.
type ToolUseBlock struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResultBlock represents the result of a tool invocation.
type ToolResultBlock struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"` // JSON-serialized result
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Schema      ToolSchema `json:"parameters" yaml:"parameters"`
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string                 `json:"type" yaml:"type"`
	Properties  map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required    []string               `json:"required,omitempty" yaml:"required,omitempty"`
	ExtraFields map[string]interface{} `json:"-" yaml:"extra,omitempty"` // For any additional schema fields
}

// AsMap renders the schema as a plain JSON-schema object.
func (s ToolSchema) AsMap() map[string]interface{} {
	out := make(map[string]interface{}, len(s.ExtraFields)+3)
	for k, v := range s.ExtraFields {
		out[k] = v
	}
	schemaType := s.Type
	if schemaType == "" {
		schemaType = "object"
	}
	out["type"] = schemaType
	properties := make(map[string]interface{}, len(s.Properties))
	for k, v := range s.Properties {
		properties[k] = v
	}
	out["properties"] = properties
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// Request represents a complete LLM API request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Seed        *int // Optional deterministic sampling seed
	MaxTokens   int64
	Temperature *float64 // Optional temperature override
}

// Response represents a complete LLM API response.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// Text joins every text block of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return joinText(r.Content)
}

// ToolUses returns the tool calls of the response in the order the model emitted them.
func (r *Response) ToolUses() []ToolUseBlock {
	if r == nil {
		return nil
	}
	return toolUses(r.Content)
}

// RequiresToolCalls reports whether the model is waiting on tool results.
// A response is final when its stop reason is set to anything other than
// "tool_calls", or when it carries no tool calls at all.
func (r *Response) RequiresToolCalls() bool {
	if r == nil {
		return false
	}
	if r.StopReason != "" && r.StopReason != StopReasonToolCalls {
		return false
	}
	return len(r.ToolUses()) > 0
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	// Provider-specific usage fields can be added here
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// NewTextMessage creates a new message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// NewAssistantMessage creates an assistant message with optional text followed
// by tool use blocks, preserving the order of toolUses.
func NewAssistantMessage(text string, toolUses []ToolUseBlock) Message {
	content := make([]ContentBlock, 0, len(toolUses)+1)
	if text != "" {
		content = append(content, ContentBlock{Type: ContentBlockTypeText, Text: text})
	}
	for i := range toolUses {
		tu := toolUses[i]
		content = append(content, ContentBlock{
			Type:    ContentBlockTypeToolUse,
			ToolUse: &tu,
		})
	}
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolResultMessage creates a tool message answering a single tool call.
func NewToolResultMessage(result ToolResultBlock) Message {
	return Message{
		Role: RoleTool,
		Content: []ContentBlock{
			{
				Type:       ContentBlockTypeToolResult,
				ToolResult: &result,
			},
		},
	}
}

// Text joins every text block of the message.
func (m Message) Text() string {
	return joinText(m.Content)
}

// ToolUses returns the tool use blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	return toolUses(m.Content)
}

// ToolResult returns the tool result carried by a tool message, if any.
func (m Message) ToolResult() *ToolResultBlock {
	for _, block := range m.Content {
		if block.Type == ContentBlockTypeToolResult && block.ToolResult != nil {
			return block.ToolResult
		}
	}
	return nil
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func joinText(blocks []ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == ContentBlockTypeText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func toolUses(blocks []ContentBlock) []ToolUseBlock {
	var out []ToolUseBlock
	for _, block := range blocks {
		if block.Type == ContentBlockTypeToolUse && block.ToolUse != nil {
			out = append(out, *block.ToolUse)
		}
	}
	return out
}
