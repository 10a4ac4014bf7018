// Package mcp is a Model Context Protocol client for servers reachable over
// HTTP. Remote tools are exposed through the tools.Tool contract.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	protocolVersion   = "2025-03-26"
	sessionHeader     = "Mcp-Session-Id"
	defaultTimeout    = 60 * time.Second
	maxResponseBytes  = 16 * 1024 * 1024
	maxListToolsPages = 32
)

var (
	ErrNotInitialized = errors.New("mcp client not initialized")
	// ErrRemote wraps JSON-RPC errors returned by the server.
	ErrRemote = errors.New("mcp server error")
)

type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Client struct {
	name   string
	url    string
	client *http.Client

	nextID atomic.Int64

	mu          sync.RWMutex
	initialized bool
	sessionID   string
	serverInfo  ServerInfo
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a client for the server called name at url. Call
// Initialize before anything else.
func NewClient(name, url string, opts ...ClientOption) *Client {
	client := &Client{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "mcp " + r.URL.Host
				})),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Name() string { return c.name }

func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Initialize performs the protocol handshake.
func (c *Client) Initialize(ctx context.Context) error {
	body, _ := sjson.SetBytes(nil, "protocolVersion", protocolVersion)
	body, _ = sjson.SetRawBytes(body, "capabilities", []byte("{}"))
	body, _ = sjson.SetBytes(body, "clientInfo.name", "ema-chat")
	body, _ = sjson.SetBytes(body, "clientInfo.version", "1.0.0")

	result, err := c.call(ctx, "initialize", body)
	if err != nil {
		return fmt.Errorf("failed to initialize %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = ServerInfo{
		Name:    result.Get("serverInfo.name").String(),
		Version: result.Get("serverInfo.version").String(),
	}
	c.mu.Unlock()

	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		logger.Warn("failed to send initialized notification", "server", c.name, "error", err)
	}
	logger.Info("connected to mcp server", "server", c.name, "remote", c.serverInfo.Name, "version", c.serverInfo.Version)
	return nil
}

// ListTools returns every tool the server offers, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if !c.isInitialized() {
		return nil, ErrNotInitialized
	}

	var (
		tools  []ToolInfo
		cursor string
	)
	for range maxListToolsPages {
		var params []byte
		if cursor != "" {
			params, _ = sjson.SetBytes(nil, "cursor", cursor)
		}
		result, err := c.call(ctx, "tools/list", params)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools of %s: %w", c.name, err)
		}

		var page []ToolInfo
		if err := json.Unmarshal([]byte(result.Get("tools").Raw), &page); err != nil {
			return nil, fmt.Errorf("failed to decode tools of %s: %w", c.name, err)
		}
		tools = append(tools, page...)

		cursor = result.Get("nextCursor").String()
		if cursor == "" {
			return tools, nil
		}
	}
	return tools, nil
}

// CallTool invokes name with arguments, a JSON object passed through to the
// server untouched. The raw result object is returned; a result flagged with
// isError is reported as an error.
func (c *Client) CallTool(ctx context.Context, name, arguments string) (gjson.Result, error) {
	ctx, span := tracer.Start(ctx, "mcp call")
	defer span.End()
	span.SetAttributes(attribute.String("mcp.server", c.name), attribute.String("mcp.tool", name))

	if !c.isInitialized() {
		return gjson.Result{}, ErrNotInitialized
	}

	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if !gjson.Valid(arguments) || !gjson.Parse(arguments).IsObject() {
		err := fmt.Errorf("arguments for %s are not a JSON object", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gjson.Result{}, err
	}

	params, _ := sjson.SetBytes(nil, "name", name)
	params, err := sjson.SetRawBytes(params, "arguments", []byte(arguments))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode arguments: %w", err)
	}

	result, err := c.call(ctx, "tools/call", params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gjson.Result{}, err
	}
	if result.Get("isError").Bool() {
		err := fmt.Errorf("tool %s reported an error: %s", name, contentText(result))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

func (c *Client) isInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// call sends a JSON-RPC request and returns its result member.
func (c *Client) call(ctx context.Context, method string, params []byte) (gjson.Result, error) {
	id := c.nextID.Add(1)
	body, _ := sjson.SetBytes([]byte(`{"jsonrpc":"2.0"}`), "id", id)
	body, _ = sjson.SetBytes(body, "method", method)
	if len(params) > 0 {
		body, _ = sjson.SetRawBytes(body, "params", params)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	if sessionID := resp.Header.Get(sessionHeader); sessionID != "" {
		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()
	}

	message, err := readResponse(resp, id)
	if err != nil {
		return gjson.Result{}, err
	}
	if rpcError := message.Get("error"); rpcError.Exists() {
		return gjson.Result{}, fmt.Errorf("%w %d: %s", ErrRemote, rpcError.Get("code").Int(), rpcError.Get("message").String())
	}
	return message.Get("result"), nil
}

func (c *Client) notify(ctx context.Context, method string) error {
	body, _ := sjson.SetBytes([]byte(`{"jsonrpc":"2.0"}`), "method", method)
	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.mu.RLock()
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
	}
	return resp, nil
}

// readResponse extracts the JSON-RPC response with the given id from a plain
// JSON body or an event stream.
func readResponse(resp *http.Response, id int64) (gjson.Result, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return gjson.Result{}, fmt.Errorf("failed to read response: %w", err)
		}
		if !gjson.ValidBytes(body) {
			return gjson.Result{}, errors.New("server returned invalid JSON")
		}
		return gjson.ParseBytes(body), nil
	}

	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxResponseBytes))
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)
	var data strings.Builder
	flush := func() (gjson.Result, bool) {
		defer data.Reset()
		if data.Len() == 0 || !gjson.Valid(data.String()) {
			return gjson.Result{}, false
		}
		message := gjson.Parse(data.String())
		return message, message.Get("id").Int() == id
	}
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if message, ok := flush(); ok {
				return message, nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read event stream: %w", err)
	}
	if message, ok := flush(); ok {
		return message, nil
	}
	return gjson.Result{}, fmt.Errorf("event stream ended without a response to request %d", id)
}

func contentText(result gjson.Result) string {
	var parts []string
	result.Get("content").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			parts = append(parts, item.Get("text").String())
		case "resource":
			if text := item.Get("resource.text"); text.Exists() {
				parts = append(parts, text.String())
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}
