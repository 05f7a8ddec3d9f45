package memory

import (
	"sync"
	"testing"

	"gateway-agent/internal/provider"
)

func TestAddMessage(t *testing.T) {
	mem := NewConversationMemory()

	mem.AddMessage("user", "hello")
	mem.AddMessage("assistant", "hi there")

	messages := mem.GetMessages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != "assistant" || messages[1].Content != "hi there" {
		t.Errorf("unexpected second message: %+v", messages[1])
	}
}

func TestAddToolResultsSingleMessage(t *testing.T) {
	mem := NewConversationMemory()
	mem.AddAssistantMessageWithToolCalls("", []provider.ToolCall{
		{ID: "tu_1", Name: "browser_navigate"},
		{ID: "tu_2", Name: "browser_snapshot"},
	})

	mem.AddToolResults([]provider.ToolResultBlock{
		{ToolUseID: "tu_1", Content: "ok"},
		{ToolUseID: "tu_2", Content: "timeout", IsError: true},
	})

	messages := mem.GetMessages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	// All results for a turn travel in one user-role message.
	last := messages[1]
	if last.Role != "user" {
		t.Errorf("expected user role, got %q", last.Role)
	}
	if len(last.ToolResults) != 2 {
		t.Fatalf("expected 2 tool result blocks, got %d", len(last.ToolResults))
	}
	if last.ToolResults[0].ToolUseID != "tu_1" || last.ToolResults[1].ToolUseID != "tu_2" {
		t.Errorf("tool result ids out of order: %+v", last.ToolResults)
	}
	if !last.ToolResults[1].IsError {
		t.Error("expected second result to be error-flagged")
	}
}

func TestGetMessagesReturnsCopy(t *testing.T) {
	mem := NewConversationMemory()
	mem.AddMessage("user", "original")

	messages := mem.GetMessages()
	messages[0].Content = "mutated"

	if mem.GetMessages()[0].Content != "original" {
		t.Error("external mutation leaked into the conversation history")
	}
}

func TestClear(t *testing.T) {
	mem := NewConversationMemory()
	mem.AddMessage("user", "hello")
	mem.Clear()

	if mem.Len() != 0 {
		t.Errorf("expected empty memory after Clear, got %d messages", mem.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	mem := NewConversationMemory()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			mem.AddMessage("user", "msg")
		}()
		go func() {
			defer wg.Done()
			_ = mem.GetMessages()
		}()
	}
	wg.Wait()

	if mem.Len() != 10 {
		t.Errorf("expected 10 messages, got %d", mem.Len())
	}
}
