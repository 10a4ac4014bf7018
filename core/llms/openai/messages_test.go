package openai

import (
	"testing"

	"github.com/koscakluka/ema-chat/core/llms"
)

func TestToOpenAIMessages_DoesNotTruncateHistoryAfterToolCalls(t *testing.T) {
	messages := toOpenAIMessages("", []llms.RequestMessage{
		{Role: llms.MessageRoleUser, Content: "first prompt"},
		{
			Role: llms.MessageRoleAssistant,
			ToolCalls: []llms.ToolCall{
				{ID: "tool_1", Name: "lookup_weather", Arguments: `{"city":"Prague"}`},
			},
		},
		{Role: llms.MessageRoleTool, ToolCallID: "tool_1", ToolName: "lookup_weather", Content: `{"temp":21}`},
		{Role: llms.MessageRoleAssistant, Content: "It is 21C in Prague."},
		{Role: llms.MessageRoleUser, Content: "second prompt"},
		{Role: llms.MessageRoleAssistant, Content: "What else can I help with?"},
	})

	if len(messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(messages))
	}

	if messages[0].Type != messageTypeMessage || messages[0].Role != messageRoleUser || messages[0].Content != "first prompt" {
		t.Fatalf("unexpected first message: %+v", messages[0])
	}

	if messages[1].Type != messageTypeFunctionCall || messages[1].ToolCallID != "tool_1" || messages[1].ToolCallArguments != `{"city":"Prague"}` {
		t.Fatalf("unexpected function call message: %+v", messages[1])
	}

	if messages[2].Type != messageTypeFunctionCallOutput || messages[2].ToolCallID != "tool_1" {
		t.Fatalf("unexpected function call output message: %+v", messages[2])
	}

	if messages[3].Type != messageTypeMessage || messages[3].Role != messageRoleAssistant || messages[3].Content != "It is 21C in Prague." {
		t.Fatalf("unexpected assistant message after tool call: %+v", messages[3])
	}

	if messages[4].Type != messageTypeMessage || messages[4].Role != messageRoleUser || messages[4].Content != "second prompt" {
		t.Fatalf("history truncated before second turn: %+v", messages[4])
	}

	if messages[5].Type != messageTypeMessage || messages[5].Role != messageRoleAssistant || messages[5].Content != "What else can I help with?" {
		t.Fatalf("unexpected final assistant message: %+v", messages[5])
	}
}

func TestToOpenAIMessages_InstructionsBecomeDeveloperMessage(t *testing.T) {
	messages := toOpenAIMessages("be brief", nil)
	if len(messages) != 1 || messages[0].Role != messageRoleDeveloper || messages[0].Content != "be brief" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestToOpenAIMessages_ImagesBecomeInputImageParts(t *testing.T) {
	messages := toOpenAIMessages("", []llms.RequestMessage{{
		Role:    llms.MessageRoleUser,
		Content: "what is this?",
		Attachments: []llms.Attachment{
			{Kind: llms.AttachmentKindImage, MIMEType: "image/png", Data: []byte("png")},
		},
	}})

	parts, ok := messages[0].Content.([]contentPart)
	if !ok {
		t.Fatalf("expected content parts, got %T", messages[0].Content)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Type != "input_text" || parts[0].Text != "what is this?" {
		t.Fatalf("unexpected text part: %+v", parts[0])
	}
	if parts[1].Type != "input_image" || parts[1].ImageURL != "data:image/png;base64,cG5n" {
		t.Fatalf("unexpected image part: %+v", parts[1])
	}
}
