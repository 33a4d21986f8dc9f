package agent

import (
	"errors"
	"testing"

	"github.com/aschepis/backscratcher/skillloop/llm"
)

func toolResult(id string) llm.Message {
	return llm.NewToolResultMessage(llm.ToolResultBlock{ToolCallID: id, Content: `{}`})
}

func assistantCalls(ids ...string) llm.Message {
	calls := make([]llm.ToolUseBlock, 0, len(ids))
	for _, id := range ids {
		calls = append(calls, call(id, "get_location", `{}`))
	}
	return llm.NewAssistantMessage("", calls)
}

func TestConversation_Append(t *testing.T) {
	system := llm.NewTextMessage(llm.RoleSystem, "sys")
	user := llm.NewTextMessage(llm.RoleUser, "hi")
	final := llm.NewTextMessage(llm.RoleAssistant, "bye")

	tests := []struct {
		name    string
		msgs    []llm.Message
		wantErr bool
	}{
		{"seed only", []llm.Message{system, user}, false},
		{"full exchange", []llm.Message{system, user, assistantCalls("a", "b"), toolResult("a"), toolResult("b"), final}, false},
		{"results out of emitted order", []llm.Message{user, assistantCalls("a", "b"), toolResult("b"), toolResult("a")}, false},
		{"two rounds", []llm.Message{user, assistantCalls("a"), toolResult("a"), assistantCalls("b"), toolResult("b"), final}, false},
		{"orphan tool result", []llm.Message{user, toolResult("a")}, true},
		{"result for unknown id", []llm.Message{user, assistantCalls("a"), toolResult("x")}, true},
		{"duplicate result", []llm.Message{user, assistantCalls("a", "b"), toolResult("a"), toolResult("a")}, true},
		{"result for earlier round", []llm.Message{user, assistantCalls("a"), toolResult("a"), assistantCalls("b"), toolResult("a")}, true},
		{"assistant before results", []llm.Message{user, assistantCalls("a"), final}, true},
		{"user before results", []llm.Message{user, assistantCalls("a"), user}, true},
		{"call id reused on a later turn", []llm.Message{user, assistantCalls("a"), toolResult("a"), assistantCalls("a"), toolResult("a"), final}, false},
		{"duplicate id in one message", []llm.Message{user, assistantCalls("a", "a")}, true},
		{"missing call id", []llm.Message{user, assistantCalls("")}, true},
		{"tool call on user message", []llm.Message{{Role: llm.RoleUser, Content: assistantCalls("a").Content}}, true},
		{"tool result on assistant message", []llm.Message{user, {Role: llm.RoleAssistant, Content: toolResult("a").Content}}, true},
		{"tool message without result", []llm.Message{user, assistantCalls("a"), llm.NewTextMessage(llm.RoleTool, "x")}, true},
		{"unknown role", []llm.Message{llm.NewTextMessage("narrator", "x")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConversation(tt.msgs...)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConversation) {
					t.Errorf("Expected ErrInvalidConversation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestConversation_Pending(t *testing.T) {
	conv, err := NewConversation(llm.NewTextMessage(llm.RoleUser, "hi"), assistantCalls("a", "b", "c"))
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if got := conv.Pending(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("Expected pending [a b c], got %v", got)
	}

	if err := conv.Append(toolResult("b")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := conv.Pending(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Expected pending [a c], got %v", got)
	}
	if conv.Len() != 3 {
		t.Errorf("Expected 3 messages, got %d", conv.Len())
	}
}

func TestConversation_RejectedAppendLeavesStateUnchanged(t *testing.T) {
	conv, err := NewConversation(llm.NewTextMessage(llm.RoleUser, "hi"), assistantCalls("a"))
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if err := conv.Append(toolResult("zzz")); err == nil {
		t.Fatal("Expected error")
	}
	if conv.Len() != 2 || len(conv.Pending()) != 1 {
		t.Errorf("Rejected append must not change the conversation")
	}
}

func TestConversation_MessagesIsACopy(t *testing.T) {
	conv, err := NewConversation(llm.NewTextMessage(llm.RoleUser, "hi"))
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	msgs := conv.Messages()
	msgs[0] = llm.NewTextMessage(llm.RoleUser, "changed")
	if conv.Messages()[0].Text() != "hi" {
		t.Error("Expected Messages to return a copy")
	}
}
