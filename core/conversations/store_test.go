package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/ema-chat/core/llms"
)

func TestMemoryStoreRoundTripsToolPairs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, NewConversation("chat", "be brief"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := llms.ToolCall{ID: "call_1", Name: "fetch_url", Arguments: "{ \"url\" : \"https://go.dev\" }"}
	if err := store.Append(ctx, created.ID,
		NewMessage(RoleUser, "read go.dev"),
		NewMessage(RoleAssistant, "", WithToolCalls(call)),
		NewMessage(RoleTool, "page", AnsweringToolCall(call, ToolStatusSuccess)),
	); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.Load(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Instructions != "be brief" {
		t.Fatalf("expected instructions to survive, got %q", loaded.Instructions)
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(loaded.Messages))
	}
	if got := loaded.Messages[1].ToolCalls[0].Arguments; got != call.Arguments {
		t.Fatalf("arguments changed: %q", got)
	}
	if loaded.Messages[2].ToolCallID != "call_1" || loaded.Messages[2].ToolStatus != ToolStatusSuccess {
		t.Fatalf("unexpected tool message %+v", loaded.Messages[2])
	}
	if loaded.Messages[0].CreatedAt.IsZero() {
		t.Fatalf("expected creation time to survive")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created, _ := store.Create(ctx, NewConversation("", ""))

	message := NewMessage(RoleAssistant, "original", WithToolCalls(llms.ToolCall{ID: "a", Name: "x", Arguments: "{}"}))
	if err := store.Append(ctx, created.ID, message); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	message.ToolCalls[0].Name = "mutated"

	loaded, _ := store.Load(ctx, created.ID)
	loaded.Messages[0].Content = "changed"

	again, _ := store.Load(ctx, created.ID)
	if again.Messages[0].Content != "original" {
		t.Fatalf("store was mutated through a loaded copy")
	}
	if again.Messages[0].ToolCalls[0].Name != "x" {
		t.Fatalf("store was mutated through an appended message")
	}
}

func TestMemoryStoreUnknownConversation(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if err := store.Append(context.Background(), "missing", NewMessage(RoleUser, "hi")); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestMemoryStoreListsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	older, _ := store.Create(ctx, Conversation{ID: "older", CreatedAt: time.Now().Add(-time.Hour)})
	newer, _ := store.Create(ctx, Conversation{ID: "newer", CreatedAt: time.Now().Add(-time.Minute)})
	_ = store.Append(ctx, older.ID, NewMessage(RoleUser, "bump"))

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != older.ID || list[1].ID != newer.ID {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[0].Messages != nil {
		t.Fatalf("expected list entries without messages")
	}
}
