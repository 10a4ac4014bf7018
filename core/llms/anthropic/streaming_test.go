package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-chat/core/llms"
)

func sse(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

func newTestBackend(t *testing.T, inspect func(map[string]any), events ...string) *Backend {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			inspect(body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			fmt.Fprint(w, event)
		}
	}))
	t.Cleanup(server.Close)
	return New("key", WithBaseURL(server.URL), WithMaxRetries(0))
}

var conversationEvents = []string{
	sse("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[],"stop_reason":null,"usage":{"input_tokens":10,"output_tokens":0}}}`),
	sse("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`),
	sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`),
	sse("content_block_stop", `{"type":"content_block_stop","index":0}`),
	sse("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`),
	sse("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Let me check."}}`),
	sse("content_block_stop", `{"type":"content_block_stop","index":1}`),
	sse("content_block_start", `{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_1","name":"web_search","input":{}}}`),
	sse("content_block_delta", `{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`),
	sse("content_block_delta", `{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":" \"go\"}"}}`),
	sse("content_block_stop", `{"type":"content_block_stop","index":2}`),
	sse("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":7}}`),
	sse("message_stop", `{"type":"message_stop"}`),
}

func TestStreamTranslatesBlocksInOrder(t *testing.T) {
	backend := newTestBackend(t, nil, conversationEvents...)

	var chunks []llms.StreamChunk
	for chunk, err := range backend.StreamingInfer(context.Background(), llms.NewRequest("claude")).Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if c, ok := chunks[0].(llms.StreamReasoningChunk); !ok || c.Reasoning() != "hmm" {
		t.Fatalf("expected reasoning first, got %#v", chunks[0])
	}
	if c, ok := chunks[1].(llms.StreamContentChunk); !ok || c.Content() != "Let me check." {
		t.Fatalf("unexpected content chunk %#v", chunks[1])
	}
	toolCall, ok := chunks[2].(llms.StreamToolCallChunk)
	if !ok {
		t.Fatalf("expected tool call chunk, got %#v", chunks[2])
	}
	if got := toolCall.ToolCall(); got.ID != "toolu_1" || got.Name != "web_search" || got.Arguments != `{"query": "go"}` {
		t.Fatalf("unexpected tool call %+v", got)
	}
	usage, ok := chunks[3].(llms.StreamUsageChunk)
	if !ok {
		t.Fatalf("expected usage chunk, got %#v", chunks[3])
	}
	if got := usage.Usage(); got.InputTokens != 10 || got.OutputTokens != 7 || got.TotalTokens != 17 {
		t.Fatalf("unexpected usage %+v", got)
	}
	if reason := usage.FinishReason(); reason == nil || *reason != "tool_use" {
		t.Fatalf("unexpected finish reason %v", reason)
	}
}

func TestStreamGroupsToolResultsIntoOneUserTurn(t *testing.T) {
	var body map[string]any
	backend := newTestBackend(t, func(b map[string]any) { body = b }, sse("message_stop", `{"type":"message_stop"}`))

	request := llms.NewRequest("claude",
		llms.WithInstructions("be brief"),
		llms.WithMessages(
			llms.RequestMessage{Role: llms.MessageRoleUser, Content: "compare"},
			llms.RequestMessage{Role: llms.MessageRoleAssistant, ToolCalls: []llms.ToolCall{
				{ID: "a", Name: "fetch_url", Arguments: `{"url":"https://a.example"}`},
				{ID: "b", Name: "fetch_url", Arguments: `{"url":"https://b.example"}`},
			}},
			llms.RequestMessage{Role: llms.MessageRoleTool, ToolCallID: "a", Content: "page a"},
			llms.RequestMessage{Role: llms.MessageRoleTool, ToolCallID: "b", Content: "boom", IsError: true},
		),
	)
	for _, err := range backend.StreamingInfer(context.Background(), request).Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	messages, _ := body["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d: %v", len(messages), messages)
	}
	toolTurn := messages[2].(map[string]any)
	if toolTurn["role"] != "user" {
		t.Fatalf("expected tool results in a user turn, got %v", toolTurn["role"])
	}
	if content, _ := toolTurn["content"].([]any); len(content) != 2 {
		t.Fatalf("expected both tool results in one turn, got %v", toolTurn["content"])
	}
	assistant := messages[1].(map[string]any)
	toolUse := assistant["content"].([]any)[0].(map[string]any)
	input, _ := toolUse["input"].(map[string]any)
	if input["url"] != "https://a.example" {
		t.Fatalf("tool input was not forwarded, got %v", toolUse["input"])
	}
	if body["system"] == nil {
		t.Fatalf("expected instructions in system prompt")
	}
}

func TestStreamForwardsReasoningSignature(t *testing.T) {
	events := []string{
		sse("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`),
		sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`),
		sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig_abc"}}`),
		sse("content_block_stop", `{"type":"content_block_stop","index":0}`),
		sse("message_stop", `{"type":"message_stop"}`),
	}
	backend := newTestBackend(t, nil, events...)

	var signature string
	for chunk, err := range backend.StreamingInfer(context.Background(), llms.NewRequest("claude")).Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c, ok := chunk.(llms.StreamReasoningSignatureChunk); ok {
			signature = c.ReasoningSignature()
		}
	}
	if signature != "sig_abc" {
		t.Fatalf("expected signature to be forwarded, got %q", signature)
	}
}

func TestStreamReplaysSignedReasoningOnToolTurns(t *testing.T) {
	testCases := []struct {
		name         string
		signature    string
		wantThinking bool
	}{
		{name: "signed reasoning", signature: "sig_abc", wantThinking: true},
		{name: "unsigned reasoning", signature: "", wantThinking: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var body map[string]any
			backend := newTestBackend(t, func(b map[string]any) { body = b }, sse("message_stop", `{"type":"message_stop"}`))

			request := llms.NewRequest("claude",
				llms.WithReasoning(true),
				llms.WithMessages(
					llms.RequestMessage{Role: llms.MessageRoleUser, Content: "search go"},
					llms.RequestMessage{
						Role:               llms.MessageRoleAssistant,
						Content:            "Let me check.",
						Reasoning:          "hmm",
						ReasoningSignature: testCase.signature,
						ToolCalls:          []llms.ToolCall{{ID: "toolu_1", Name: "web_search", Arguments: `{"query":"go"}`}},
					},
					llms.RequestMessage{Role: llms.MessageRoleTool, ToolCallID: "toolu_1", Content: "results"},
				),
			)
			for _, err := range backend.StreamingInfer(context.Background(), request).Chunks(context.Background()) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}

			_, thinkingEnabled := body["thinking"]
			if thinkingEnabled != testCase.wantThinking {
				t.Fatalf("expected thinking enabled %v, got %v", testCase.wantThinking, body["thinking"])
			}

			messages, _ := body["messages"].([]any)
			if len(messages) != 3 {
				t.Fatalf("expected 3 messages, got %d: %v", len(messages), messages)
			}
			content := messages[1].(map[string]any)["content"].([]any)
			first := content[0].(map[string]any)
			if testCase.wantThinking {
				if first["type"] != "thinking" || first["signature"] != testCase.signature || first["thinking"] != "hmm" {
					t.Fatalf("expected signed thinking block first, got %v", first)
				}
				if len(content) != 3 {
					t.Fatalf("expected thinking, text and tool_use blocks, got %v", content)
				}
			} else if first["type"] != "text" {
				t.Fatalf("expected unsigned reasoning to be dropped, got %v", first)
			}
		})
	}
}
