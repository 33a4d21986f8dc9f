package agent

import (
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/samber/lo"
)

// ErrInvalidConversation is returned when an append would break message ordering.
var ErrInvalidConversation = errors.New("invalid conversation")

// Conversation is the append-only message log of a single run.
//
// Tool messages may only answer calls emitted by the nearest preceding
// assistant message, each call at most once, and nothing but tool messages
// may be appended while any of those calls is unanswered. Call ids must be
// unique within one assistant message; later turns may reuse them.
type Conversation struct {
	messages []llm.Message
	pending  []string // unanswered call ids of the last assistant message, in emitted order
}

// NewConversation creates a conversation seeded with msgs.
func NewConversation(msgs ...llm.Message) (*Conversation, error) {
	c := &Conversation{}
	for i, msg := range msgs {
		if err := c.Append(msg); err != nil {
			return nil, fmt.Errorf("seed message %d: %w", i, err)
		}
	}
	return c, nil
}

// Append adds msg to the end of the conversation.
func (c *Conversation) Append(msg llm.Message) error {
	if err := c.check(msg); err != nil {
		return err
	}

	switch msg.Role {
	case llm.RoleAssistant:
		c.pending = lo.Map(msg.ToolUses(), func(tu llm.ToolUseBlock, _ int) string { return tu.ID })
	case llm.RoleTool:
		id := msg.ToolResult().ToolCallID
		c.pending = lo.Without(c.pending, id)
	}

	c.messages = append(c.messages, msg)
	return nil
}

func (c *Conversation) check(msg llm.Message) error {
	for _, block := range msg.Content {
		if block.Type == llm.ContentBlockTypeToolUse && msg.Role != llm.RoleAssistant {
			return fmt.Errorf("%w: %s message carries a tool call", ErrInvalidConversation, msg.Role)
		}
		if block.Type == llm.ContentBlockTypeToolResult && msg.Role != llm.RoleTool {
			return fmt.Errorf("%w: %s message carries a tool result", ErrInvalidConversation, msg.Role)
		}
	}

	switch msg.Role {
	case llm.RoleSystem, llm.RoleUser:
		if len(c.pending) > 0 {
			return fmt.Errorf("%w: %s message appended while tool calls %v are unanswered", ErrInvalidConversation, msg.Role, c.pending)
		}
	case llm.RoleAssistant:
		if len(c.pending) > 0 {
			return fmt.Errorf("%w: assistant message appended while tool calls %v are unanswered", ErrInvalidConversation, c.pending)
		}
		batch := make(map[string]struct{})
		for _, tu := range msg.ToolUses() {
			if tu.ID == "" {
				return fmt.Errorf("%w: tool call %q has no id", ErrInvalidConversation, tu.Name)
			}
			if _, dup := batch[tu.ID]; dup {
				return fmt.Errorf("%w: tool call id %q repeated in one message", ErrInvalidConversation, tu.ID)
			}
			batch[tu.ID] = struct{}{}
		}
	case llm.RoleTool:
		results := lo.Filter(msg.Content, func(b llm.ContentBlock, _ int) bool {
			return b.Type == llm.ContentBlockTypeToolResult && b.ToolResult != nil
		})
		if len(results) != 1 {
			return fmt.Errorf("%w: tool message must carry exactly one result, got %d", ErrInvalidConversation, len(results))
		}
		id := results[0].ToolResult.ToolCallID
		if !lo.Contains(c.pending, id) {
			return fmt.Errorf("%w: tool result %q does not answer a pending call of the preceding assistant message", ErrInvalidConversation, id)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidConversation, msg.Role)
	}
	return nil
}

// Messages returns a copy of the conversation in append order.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Pending returns the unanswered tool call ids of the last assistant message.
func (c *Conversation) Pending() []string {
	out := make([]string, len(c.pending))
	copy(out, c.pending)
	return out
}
