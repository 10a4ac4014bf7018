package conversations

import (
	"strings"
	"testing"

	"github.com/koscakluka/ema-chat/core/llms"
)

func toolCall(id string) llms.ToolCall {
	return llms.ToolCall{ID: id, Name: "web_search", Arguments: `{"query":"` + id + `"}`}
}

func TestBuildRequestMessagesPreservesToolPairing(t *testing.T) {
	conversation := Conversation{Messages: []Message{
		NewMessage(RoleUser, "find it"),
		NewMessage(RoleAssistant, "", WithToolCalls(toolCall("a"), toolCall("b"))),
		NewMessage(RoleUser, "", WithKind(KindSources), WithSources(Source{Title: "Go", URL: "https://go.dev"})),
		NewMessage(RoleTool, "result a", AnsweringToolCall(toolCall("a"), ToolStatusSuccess)),
		NewMessage(RoleTool, "Error: boom", AnsweringToolCall(toolCall("b"), ToolStatusFailure)),
		NewMessage(RoleAssistant, "done"),
	}}

	messages := NewBuilder().BuildRequestMessages(conversation, llms.Capabilities{Tools: true})

	roles := []llms.MessageRole{}
	for _, message := range messages {
		roles = append(roles, message.Role)
	}
	expected := []llms.MessageRole{
		llms.MessageRoleUser,
		llms.MessageRoleAssistant,
		llms.MessageRoleTool,
		llms.MessageRoleTool,
		llms.MessageRoleUser,
		llms.MessageRoleAssistant,
	}
	if len(roles) != len(expected) {
		t.Fatalf("expected roles %v, got %v", expected, roles)
	}
	for i := range expected {
		if roles[i] != expected[i] {
			t.Fatalf("expected roles %v, got %v", expected, roles)
		}
	}

	if len(messages[1].ToolCalls) != 2 {
		t.Fatalf("expected both tool calls kept, got %d", len(messages[1].ToolCalls))
	}
	if messages[1].ToolCalls[0].Arguments != `{"query":"a"}` {
		t.Fatalf("arguments changed: %q", messages[1].ToolCalls[0].Arguments)
	}
	if messages[2].ToolCallID != "a" || messages[3].ToolCallID != "b" {
		t.Fatalf("tool results out of call order: %q, %q", messages[2].ToolCallID, messages[3].ToolCallID)
	}
	if !messages[3].IsError {
		t.Fatalf("expected failed tool result to be flagged")
	}
	if !strings.Contains(messages[4].Content, "[1] Go <https://go.dev>") {
		t.Fatalf("expected sources listing, got %q", messages[4].Content)
	}
}

func TestBuildRequestMessagesCarriesSignedReasoning(t *testing.T) {
	testCases := []struct {
		name          string
		options       []MessageOption
		wantReasoning string
	}{
		{
			name:          "signed",
			options:       []MessageOption{WithReasoning("think"), WithReasoningSignature("sig"), WithToolCalls(toolCall("a"))},
			wantReasoning: "think",
		},
		{
			name:          "unsigned",
			options:       []MessageOption{WithReasoning("think"), WithToolCalls(toolCall("a"))},
			wantReasoning: "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			conversation := Conversation{Messages: []Message{
				NewMessage(RoleUser, "find it"),
				NewMessage(RoleAssistant, "", testCase.options...),
				NewMessage(RoleTool, "result a", AnsweringToolCall(toolCall("a"), ToolStatusSuccess)),
			}}

			messages := NewBuilder().BuildRequestMessages(conversation, llms.Capabilities{Tools: true})
			if len(messages) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(messages))
			}
			if messages[1].Reasoning != testCase.wantReasoning {
				t.Fatalf("expected reasoning %q, got %q", testCase.wantReasoning, messages[1].Reasoning)
			}
		})
	}
}

func TestBuildRequestMessagesDropsDanglingCallsAndOrphanResults(t *testing.T) {
	conversation := Conversation{Messages: []Message{
		NewMessage(RoleTool, "orphan before", AnsweringToolCall(toolCall("x"), ToolStatusSuccess)),
		NewMessage(RoleUser, "go"),
		NewMessage(RoleAssistant, "checking", WithToolCalls(toolCall("a"), toolCall("b"))),
		NewMessage(RoleTool, "result a", AnsweringToolCall(toolCall("a"), ToolStatusSuccess)),
		NewMessage(RoleTool, "stray", AnsweringToolCall(toolCall("z"), ToolStatusSuccess)),
		NewMessage(RoleUser, "next"),
		NewMessage(RoleAssistant, "", WithToolCalls(toolCall("c"))),
	}}

	messages := NewBuilder().BuildRequestMessages(conversation, llms.Capabilities{})

	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(messages), messages)
	}
	if messages[1].Content != "checking" || len(messages[1].ToolCalls) != 1 || messages[1].ToolCalls[0].ID != "a" {
		t.Fatalf("expected only the answered call, got %+v", messages[1])
	}
	if messages[2].ToolCallID != "a" {
		t.Fatalf("expected result a, got %+v", messages[2])
	}
	if messages[3].Content != "next" {
		t.Fatalf("expected trailing dangling call dropped, got %+v", messages[3])
	}
}

func TestBuildRequestMessagesForwardsImagesOnlyWhenSupported(t *testing.T) {
	image := llms.Attachment{Kind: llms.AttachmentKindImage, MIMEType: "image/png", Name: "cat.png", Data: []byte{1}}
	conversation := Conversation{Messages: []Message{
		NewMessage(RoleUser, "what is this?", WithAttachments(image)),
	}}

	testCases := []struct {
		name            string
		caps            llms.Capabilities
		wantAttachments int
		wantNote        bool
	}{
		{name: "images supported", caps: llms.Capabilities{Images: true}, wantAttachments: 1},
		{name: "text only", caps: llms.Capabilities{}, wantNote: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			messages := NewBuilder().BuildRequestMessages(conversation, testCase.caps)
			if len(messages) != 1 {
				t.Fatalf("expected 1 message, got %d", len(messages))
			}
			if got := len(messages[0].Attachments); got != testCase.wantAttachments {
				t.Fatalf("expected %d attachments, got %d", testCase.wantAttachments, got)
			}
			if hasNote := strings.Contains(messages[0].Content, "cat.png"); hasNote != testCase.wantNote {
				t.Fatalf("expected note %v, got content %q", testCase.wantNote, messages[0].Content)
			}
		})
	}
}

func TestBuildRequestMessagesTrimsOldestExchangesAsUnits(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	conversation := Conversation{Messages: []Message{
		NewMessage(RoleSystem, "rules"),
		NewMessage(RoleUser, long),
		NewMessage(RoleAssistant, long, WithToolCalls(toolCall("a"))),
		NewMessage(RoleTool, long, AnsweringToolCall(toolCall("a"), ToolStatusSuccess)),
		NewMessage(RoleUser, "latest question"),
	}}

	builder := NewBuilder()
	full := builder.BuildRequestMessages(conversation, llms.Capabilities{})
	if len(full) != 5 {
		t.Fatalf("expected untrimmed history of 5, got %d", len(full))
	}

	trimmed := builder.BuildRequestMessages(conversation, llms.Capabilities{ContextWindow: 50})
	if len(trimmed) != 2 {
		t.Fatalf("expected system and latest message, got %d: %+v", len(trimmed), trimmed)
	}
	if trimmed[0].Role != llms.MessageRoleSystem || trimmed[1].Content != "latest question" {
		t.Fatalf("unexpected trimmed history: %+v", trimmed)
	}
	for _, message := range trimmed {
		if message.Role == llms.MessageRoleTool {
			t.Fatalf("tool result survived without its call")
		}
	}
}

func TestFormatSources(t *testing.T) {
	got := FormatSources([]Source{
		{Title: "A", URL: "https://a.example"},
		{Title: "B", URL: "https://b.example", Snippet: "about b"},
	})
	want := "[1] A <https://a.example>\n[2] B <https://b.example>\n    about b"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
