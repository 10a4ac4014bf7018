package events

import "testing"

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "user message added", event: NewUserMessageAdded("m1", "hi", 0), expected: KindUserMessageAdded},
		{name: "assistant response started", event: NewAssistantResponseStarted("m2", 1), expected: KindAssistantResponseStarted},
		{name: "assistant response updated", event: NewAssistantResponseUpdated("m2", "text", "a", "a", ""), expected: KindAssistantResponseUpdated},
		{name: "assistant reasoning collapsed", event: NewAssistantReasoningCollapsed("m2"), expected: KindAssistantReasoningCollapsed},
		{name: "assistant response final", event: NewAssistantResponseFinal("m2", "a", "", 0), expected: KindAssistantResponseFinal},
		{name: "tool call status", event: NewToolCallStatus("c1", "web_search", ToolPhaseLoading), expected: KindToolCallStatus},
		{name: "tool call started", event: NewToolCallStarted("c1", "web_search", "{}"), expected: KindToolCallStarted},
		{name: "tool call completed", event: NewToolCallCompleted("c1", "web_search", "ok", false), expected: KindToolCallCompleted},
		{name: "tool call failed", event: NewToolCallFailed("c1", "web_search", "boom"), expected: KindToolCallFailed},
		{name: "attachment added", event: NewAttachmentAdded("m3", "image", "image/png", 10), expected: KindAttachmentAdded},
		{name: "attachment rejected", event: NewAttachmentRejected("image", "not an image"), expected: KindAttachmentRejected},
		{name: "sources added", event: NewSourcesAdded("m4", 2), expected: KindSourcesAdded},
		{name: "turn started", event: NewTurnStarted(), expected: KindTurnStarted},
		{name: "turn state changed", event: NewTurnStateChanged("idle", "streaming"), expected: KindTurnStateChanged},
		{name: "turn completed", event: NewTurnCompleted(1), expected: KindTurnCompleted},
		{name: "turn failed", event: NewTurnFailed("boom"), expected: KindTurnFailed},
		{name: "turn cancelled", event: NewTurnCancelled(), expected: KindTurnCancelled},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestInTurnScopesEvent(t *testing.T) {
	event := NewTurnStarted(InTurn("conv", "turn"))
	if event.ConversationID() != "conv" || event.TurnID() != "turn" {
		t.Fatalf("expected conv/turn, got %q/%q", event.ConversationID(), event.TurnID())
	}

	unscoped := NewTurnStarted()
	if unscoped.ConversationID() != "" || unscoped.TurnID() != "" {
		t.Fatalf("expected unscoped event, got %q/%q", unscoped.ConversationID(), unscoped.TurnID())
	}
}

func TestToolCallStatusDescription(t *testing.T) {
	testCases := []struct {
		phase    ToolPhase
		expected string
	}{
		{phase: ToolPhaseLoading, expected: "loading tool: fetch_url"},
		{phase: ToolPhaseUtilizing, expected: "utilizing tool: fetch_url"},
		{phase: ToolPhaseCompleted, expected: "used tool: fetch_url"},
		{phase: ToolPhaseFailed, expected: "tool failed: fetch_url"},
	}

	for _, testCase := range testCases {
		t.Run(string(testCase.phase), func(t *testing.T) {
			got := NewToolCallStatus("c1", "fetch_url", testCase.phase).Description()
			if got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}
