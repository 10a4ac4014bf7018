package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-chat/core/llms"
)

func TestToContentsGroupsFunctionResponses(t *testing.T) {
	contents, system := toContents([]llms.RequestMessage{
		{Role: llms.MessageRoleSystem, Content: "context"},
		{Role: llms.MessageRoleUser, Content: "weather?"},
		{Role: llms.MessageRoleAssistant, ToolCalls: []llms.ToolCall{
			{ID: "a", Name: "weather", Arguments: `{"city":"Prague"}`},
			{ID: "b", Name: "weather", Arguments: `{"city":"Split"}`},
		}},
		{Role: llms.MessageRoleTool, ToolCallID: "a", ToolName: "weather", Content: "21C"},
		{Role: llms.MessageRoleTool, ToolCallID: "b", ToolName: "weather", Content: "timeout", IsError: true},
	})

	if len(system) != 1 {
		t.Fatalf("expected system part, got %d", len(system))
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != roleModel || len(contents[1].Parts) != 2 {
		t.Fatalf("unexpected model content %+v", contents[1])
	}
	if got := contents[1].Parts[0].FunctionCall.Args["city"]; got != "Prague" {
		t.Fatalf("unexpected args %v", got)
	}
	responses := contents[2]
	if responses.Role != roleUser || len(responses.Parts) != 2 {
		t.Fatalf("expected grouped function responses, got %+v", responses)
	}
	if responses.Parts[1].FunctionResponse.Response["error"] != "timeout" {
		t.Fatalf("expected error response, got %v", responses.Parts[1].FunctionResponse.Response)
	}
}

func TestStreamTranslatesParts(t *testing.T) {
	image := base64.StdEncoding.EncodeToString([]byte("img"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"planning","thought":true}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Here"},{"inlineData":{"mimeType":"image/png","data":"`+image+`"}}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"web_search","args":{"query":"go"}}}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":4,"totalTokenCount":7}}`+"\n\n")
	}))
	t.Cleanup(server.Close)

	backend, err := New(context.Background(), "key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunks []llms.StreamChunk
	for chunk, err := range backend.StreamingInfer(context.Background(), llms.NewRequest("gemini")).Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
	if c, ok := chunks[0].(llms.StreamReasoningChunk); !ok || c.Reasoning() != "planning" {
		t.Fatalf("expected reasoning, got %#v", chunks[0])
	}
	if c, ok := chunks[1].(llms.StreamContentChunk); !ok || c.Content() != "Here" {
		t.Fatalf("expected content, got %#v", chunks[1])
	}
	if c, ok := chunks[2].(llms.StreamImageChunk); !ok || string(c.Image()) != "img" || c.MIMEType() != "image/png" {
		t.Fatalf("expected image, got %#v", chunks[2])
	}
	toolCall, ok := chunks[3].(llms.StreamToolCallChunk)
	if !ok || toolCall.ToolCall().Name != "web_search" || toolCall.ToolCall().Arguments != `{"query":"go"}` || toolCall.ToolCall().ID == "" {
		t.Fatalf("unexpected tool call %#v", chunks[3])
	}
	if c, ok := chunks[4].(llms.StreamUsageChunk); !ok || c.Usage().TotalTokens != 7 {
		t.Fatalf("expected usage, got %#v", chunks[4])
	}
}
