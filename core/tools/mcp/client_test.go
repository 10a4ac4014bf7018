package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/tools"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeServer is a minimal streamable-HTTP MCP server.
type fakeServer struct {
	mu        sync.Mutex
	arguments []string
	methods   []string
	sse       bool
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	request := gjson.ParseBytes(body)
	method := request.Get("method").String()

	s.mu.Lock()
	s.methods = append(s.methods, method)
	s.mu.Unlock()

	if !request.Get("id").Exists() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if method != "initialize" && r.Header.Get("Mcp-Session-Id") != "session-1" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}

	var result string
	switch method {
	case "initialize":
		w.Header().Set("Mcp-Session-Id", "session-1")
		result = `{"protocolVersion":"2025-03-26","capabilities":{"tools":{}},"serverInfo":{"name":"fake","version":"0.1"}}`
	case "tools/list":
		if request.Get("params.cursor").String() == "" {
			result = `{"tools":[{"name":"add","description":"Adds numbers","inputSchema":{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}}],"nextCursor":"page-2"}`
		} else {
			result = `{"tools":[{"name":"render.chart","description":"Renders a chart"}]}`
		}
	case "tools/call":
		s.mu.Lock()
		s.arguments = append(s.arguments, request.Get("params.arguments").Raw)
		s.mu.Unlock()
		switch request.Get("params.name").String() {
		case "add":
			a, b := request.Get("params.arguments.a").Float(), request.Get("params.arguments.b").Float()
			result = fmt.Sprintf(`{"content":[{"type":"text","text":"%g"}]}`, a+b)
		case "render.chart":
			image := base64.StdEncoding.EncodeToString([]byte("png"))
			result = `{"content":[{"type":"text","text":"chart"},{"type":"image","data":"` + image + `","mimeType":"image/png"}]}`
		default:
			result = `{"isError":true,"content":[{"type":"text","text":"unknown tool"}]}`
		}
	default:
		response := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, request.Get("id").Int())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
		return
	}

	response := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, request.Get("id").Int(), result)
	if s.sse {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
		_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", response)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(response))
}

func TestClientRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		sse  bool
	}{
		{name: "json responses"},
		{name: "event stream responses", sse: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fake := &fakeServer{sse: testCase.sse}
			server := httptest.NewServer(fake)
			defer server.Close()

			ctx := context.Background()
			client := NewClient("calc", server.URL)
			require.NoError(t, client.Initialize(ctx))
			require.Equal(t, "fake", client.ServerInfo().Name)

			infos, err := client.ListTools(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 2)
			require.Equal(t, "add", infos[0].Name)
			require.Equal(t, "render.chart", infos[1].Name)

			arguments := `{"a": 2,  "b":3.5}`
			result, err := client.CallTool(ctx, "add", arguments)
			require.NoError(t, err)
			require.Equal(t, "5.5", contentText(result))

			fake.mu.Lock()
			require.Equal(t, []string{arguments}, fake.arguments, "arguments must reach the server untouched")
			require.Contains(t, fake.methods, "notifications/initialized")
			fake.mu.Unlock()
		})
	}
}

func TestClientReportsErrors(t *testing.T) {
	server := httptest.NewServer(&fakeServer{})
	defer server.Close()
	ctx := context.Background()

	client := NewClient("calc", server.URL)
	_, err := client.ListTools(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, client.Initialize(ctx))

	_, err = client.CallTool(ctx, "missing", `{}`)
	require.ErrorContains(t, err, "unknown tool")

	_, err = client.CallTool(ctx, "add", `[1,2]`)
	require.ErrorContains(t, err, "not a JSON object")

	_, err = client.call(ctx, "resources/list", nil)
	require.ErrorIs(t, err, ErrRemote)
}

func TestDiscoverRegistersPrefixedTools(t *testing.T) {
	fake := &fakeServer{}
	server := httptest.NewServer(fake)
	defer server.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	registry, err := tools.NewRegistry()
	require.NoError(t, err)

	clients, err := Discover(context.Background(), registry, []Server{
		{Name: "calc", URL: server.URL},
		{Name: "broken", URL: broken.URL},
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "broken")
	require.Len(t, clients, 1)

	names := []string{}
	for _, schema := range registry.Schemas() {
		names = append(names, schema.Name)
	}
	require.Equal(t, []string{"calc_add", "calc_render_chart"}, names)

	add := registry.Resolve("calc_add")
	require.NotNil(t, add)
	require.Equal(t, []string{"a", "b"}, add.Schema().Required())

	chart := registry.Resolve("calc_render_chart")
	require.Equal(t, "object", chart.Schema().Parameters["type"])

	var written []conversations.Message
	writer := tools.HistoryWriterFunc(func(_ context.Context, message conversations.Message) error {
		written = append(written, message)
		return nil
	})
	coordinator := tools.NewCoordinator(registry)
	call := llms.ToolCall{ID: "1", Name: "calc_render_chart", Arguments: `{}`}
	result := coordinator.Execute(context.Background(), coordinator.Resolve(call), call, writer)
	require.Equal(t, conversations.ToolStatusSuccess, result.Status)
	require.Equal(t, "chart", result.Text)
	require.Len(t, written, 1)
	require.Equal(t, conversations.KindAttachment, written[0].Kind)
	require.Equal(t, []byte("png"), written[0].Attachments[0].Data)
}

func TestToolName(t *testing.T) {
	require.Equal(t, "my_server_do_thing", ToolName("my server", "do.thing"))
	long := ToolName("server", string(make([]byte, 100)))
	require.Len(t, long, maxToolNameLength)
}

func TestNewToolKeepsRemoteSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
	tool := NewTool(NewClient("files", "http://127.0.0.1"), ToolInfo{Name: "read", Description: "Reads", InputSchema: schema})
	require.Equal(t, "files_read", tool.Schema().Name)
	require.Contains(t, tool.Schema().Properties(), "path")
}
