// Package chatcompletions streams from any OpenAI-compatible chat completions
// endpoint: OpenAI, Groq, or a local server such as llama.cpp, Ollama or
// LM Studio.
package chatcompletions

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const GroqBaseURL = "https://api.groq.com/openai/v1"

type Backend struct {
	client openai.Client
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

// New creates a backend. An empty apiKey is allowed for local servers that do
// not authenticate.
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
	return &Backend{client: openai.NewClient(requestOptions...)}
}

func (b *Backend) StreamingInfer(_ context.Context, request llms.Request) llms.Stream {
	return &Stream{client: b.client, request: request}
}

type Stream struct {
	client  openai.Client
	request llms.Request
}

type pendingToolCall struct {
	index     int64
	id        string
	name      string
	arguments string
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.request.Model))
		var toolNames []string
		for _, tool := range s.request.Tools {
			toolNames = append(toolNames, tool.Name)
		}
		span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

		params := openai.ChatCompletionNewParams{
			Model:         openai.ChatModel(s.request.Model),
			Messages:      toMessages(s.request.Instructions, s.request.Messages),
			StreamOptions: openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)},
		}
		if len(s.request.Tools) > 0 {
			params.Tools = toTools(s.request.Tools)
		}
		if s.request.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(s.request.MaxTokens))
		}

		requestToFirstTokenTime = time.Now()
		startTime := time.Now()
		span.AddEvent("request started")
		stream := s.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		pending := map[int64]*pendingToolCall{}
		var finishReason *string
		for stream.Next() {
			setRequestToFirstTokenTime(span)
			chunk := stream.Current()

			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				if choice.FinishReason != "" {
					reason := choice.FinishReason
					finishReason = &reason
				}

				for _, delta := range choice.Delta.ToolCalls {
					call, ok := pending[delta.Index]
					if !ok {
						call = &pendingToolCall{index: delta.Index}
						pending[delta.Index] = call
					}
					if delta.ID != "" {
						call.id = delta.ID
					}
					if delta.Function.Name != "" {
						call.name = delta.Function.Name
					}
					call.arguments += delta.Function.Arguments
				}

				raw := choice.Delta.RawJSON()
				reasoning := gjson.Get(raw, "reasoning_content").String()
				if reasoning == "" {
					reasoning = gjson.Get(raw, "reasoning").String()
				}
				if reasoning != "" {
					if !yield(llms.NewReasoningChunk(reasoning), nil) {
						return
					}
				}

				if choice.Delta.Content != "" {
					if !yield(llms.NewContentChunk(choice.Delta.Content), nil) {
						return
					}
				}
			}

			if chunk.Usage.TotalTokens > 0 {
				usage := llms.Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:  int(chunk.Usage.TotalTokens),
					TotalTime:    time.Since(startTime).Seconds(),
				}
				if cached := chunk.Usage.PromptTokensDetails.CachedTokens; cached > 0 {
					usage.InputTokensDetails = &llms.InputTokensDetails{CachedTokens: int(cached)}
				}
				if reasoningTokens := chunk.Usage.CompletionTokensDetails.ReasoningTokens; reasoningTokens > 0 {
					usage.OutputTokensDetails = &llms.OutputTokensDetails{ReasoningTokens: int(reasoningTokens)}
				}
				span.SetAttributes(
					attribute.Int("usage.input", usage.InputTokens),
					attribute.Int("usage.output", usage.OutputTokens),
					attribute.Int("usage.total", usage.TotalTokens),
				)
				if !yield(llms.NewUsageChunk(usage, finishReason), nil) {
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

		calls := make([]*pendingToolCall, 0, len(pending))
		for _, call := range pending {
			calls = append(calls, call)
		}
		slices.SortFunc(calls, func(a, b *pendingToolCall) int { return int(a.index - b.index) })

		toolNames = toolNames[:0]
		for _, call := range calls {
			if call.name == "" {
				logger.Warn("dropping tool call without a name", "index", call.index, "id", call.id)
				continue
			}
			toolNames = append(toolNames, call.name)
			if !yield(llms.NewToolCallChunk(llms.ToolCall{
				ID:        call.id,
				Name:      call.name,
				Arguments: call.arguments,
			}), nil) {
				return
			}
		}
		span.SetAttributes(attribute.StringSlice("response.tool_calls", toolNames))
	}
}
