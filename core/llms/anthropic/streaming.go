// Package anthropic streams from the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/koscakluka/ema-chat/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultMaxTokens      = 4096
	defaultThinkingBudget = 2048
)

type Backend struct {
	client sdk.Client
}

type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	maxRetries *int
}

func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithMaxRetries(retries int) Option {
	return func(o *options) {
		o.maxRetries = &retries
	}
}

func New(apiKey string, opts ...Option) *Backend {
	o := options{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(&o)
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(o.httpClient),
	}
	if o.baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(o.baseURL))
	}
	if o.maxRetries != nil {
		requestOptions = append(requestOptions, option.WithMaxRetries(*o.maxRetries))
	}
	return &Backend{client: sdk.NewClient(requestOptions...)}
}

func (b *Backend) StreamingInfer(_ context.Context, request llms.Request) llms.Stream {
	return &Stream{client: b.client, request: request}
}

type Stream struct {
	client  sdk.Client
	request llms.Request
}

type pendingToolUse struct {
	id    string
	name  string
	input string
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.request.Model))

		messages, system := toMessages(s.request.Messages)
		if s.request.Instructions != "" {
			system = append([]sdk.TextBlockParam{{Text: s.request.Instructions}}, system...)
		}

		maxTokens := int64(defaultMaxTokens)
		if s.request.MaxTokens > 0 {
			maxTokens = int64(s.request.MaxTokens)
		}
		params := sdk.MessageNewParams{
			Model:     sdk.Model(s.request.Model),
			Messages:  messages,
			MaxTokens: maxTokens,
		}
		if len(system) > 0 {
			params.System = system
		}
		if len(s.request.Tools) > 0 {
			params.Tools = toTools(s.request.Tools)
		}
		if s.request.Reasoning && maxTokens > defaultThinkingBudget {
			if unsignedToolTurn(s.request.Messages) {
				// The API requires the last assistant tool turn to open with
				// its signed thinking block while thinking is enabled.
				logger.Debug("disabling thinking for a tool turn without signed reasoning")
			} else {
				params.Thinking = sdk.ThinkingConfigParamOfEnabled(defaultThinkingBudget)
			}
		}

		startTime := time.Now()
		stream := s.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		usage := llms.Usage{}
		var stopReason *string
		toolUses := map[int64]*pendingToolUse{}

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				usage.InputTokens = int(event.Message.Usage.InputTokens)
				if cached := event.Message.Usage.CacheReadInputTokens; cached > 0 {
					usage.InputTokensDetails = &llms.InputTokensDetails{CachedTokens: int(cached)}
				}

			case "content_block_start":
				if event.ContentBlock.Type == "tool_use" {
					toolUses[event.Index] = &pendingToolUse{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
				}

			case "content_block_delta":
				switch event.Delta.Type {
				case "text_delta":
					if !yield(llms.NewContentChunk(event.Delta.Text), nil) {
						return
					}
				case "thinking_delta":
					if !yield(llms.NewReasoningChunk(event.Delta.Thinking), nil) {
						return
					}
				case "signature_delta":
					if !yield(llms.NewReasoningSignatureChunk(event.Delta.Signature), nil) {
						return
					}
				case "input_json_delta":
					if toolUse, ok := toolUses[event.Index]; ok {
						toolUse.input += event.Delta.PartialJSON
					}
				}

			case "content_block_stop":
				toolUse, ok := toolUses[event.Index]
				if !ok {
					continue
				}
				delete(toolUses, event.Index)
				arguments := toolUse.input
				if arguments == "" {
					arguments = "{}"
				}
				if !yield(llms.NewToolCallChunk(llms.ToolCall{ID: toolUse.id, Name: toolUse.name, Arguments: arguments}), nil) {
					return
				}

			case "message_delta":
				usage.OutputTokens = int(event.Usage.OutputTokens)
				if reason := string(event.Delta.StopReason); reason != "" {
					stopReason = &reason
				}

			case "message_stop":
				usage.TotalTokens = usage.InputTokens + usage.OutputTokens
				usage.TotalTime = time.Since(startTime).Seconds()
				span.SetAttributes(
					attribute.Int("usage.input", usage.InputTokens),
					attribute.Int("usage.output", usage.OutputTokens),
				)
				if !yield(llms.NewUsageChunk(usage, stopReason), nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			err = fmt.Errorf("error reading streamed response: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
			return
		}
		if len(toolUses) > 0 {
			logger.Warn("stream ended with unterminated tool use blocks", "count", len(toolUses))
		}
	}
}
