package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/internal/utils"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	eventPrefix = "event:"
	chunkPrefix = "data:"

	// Generated images arrive base64 encoded in a single SSE line.
	maxEventSize = 32 << 20
)

// Backend streams from the OpenAI Responses API.
type Backend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type Option func(*Backend)

// WithBaseURL points the backend at a Responses-compatible endpoint other
// than api.openai.com.
func WithBaseURL(baseURL string) Option {
	return func(b *Backend) {
		b.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(b *Backend) {
		b.client = client
	}
}

func New(apiKey string, opts ...Option) *Backend {
	backend := &Backend{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(backend)
	}
	return backend
}

func (b *Backend) StreamingInfer(_ context.Context, request llms.Request) llms.Stream {
	return &Stream{backend: b, request: request}
}

type Stream struct {
	backend *Backend
	request llms.Request
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.request.Model))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		reqBody := requestBody{
			Model:  s.request.Model,
			Input:  toOpenAIMessages(s.request.Instructions, s.request.Messages),
			Stream: true,
		}
		if len(s.request.Tools) > 0 {
			reqBody.Tools = toOpenAITools(s.request.Tools)
			reqBody.ToolChoice = utils.Ptr("auto")
		}
		if s.request.MaxTokens > 0 {
			reqBody.MaxOutputTokens = utils.Ptr(s.request.MaxTokens)
		}
		if s.request.Reasoning {
			reqBody.Reasoning = &requestBodyReasoning{
				Effort:  utils.Ptr("low"),
				Summary: utils.Ptr("auto"),
			}
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.backend.baseURL+"/responses", bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+s.backend.apiKey)

		resp, err := s.backend.client.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		usage := llms.Usage{}
		startTime := time.Now()
		event := ""

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if len(line) == 0 {
				event = ""
				continue
			}
			if strings.HasPrefix(line, eventPrefix) {
				event = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
				continue
			}
			if !strings.HasPrefix(line, chunkPrefix) {
				continue
			}

			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			if event == "" {
				event = gjson.Get(chunk, "type").String()
			}

			switch streamingEventType(event) {
			case streamingEventResponseOutputTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					fail(fmt.Errorf("error unmarshalling JSON: %w", err))
					return
				}
				if !yield(llms.NewContentChunk(responseBody.Delta), nil) {
					return
				}

			case streamingEventResponseReasoningTextDelta,
				streamingEventResponseReasoningSummaryTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					fail(fmt.Errorf("error unmarshalling JSON: %w", err))
					return
				}
				if !yield(llms.NewReasoningChunk(responseBody.Delta), nil) {
					return
				}

			case streamingEventResponseOutputItemDone:
				var responseBody streamingBodyOutputItemDone
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					fail(fmt.Errorf("error unmarshalling JSON: %w", err))
					return
				}
				switch responseBody.Item.Type {
				case "function_call":
					if !yield(llms.NewToolCallChunk(llms.ToolCall{
						ID:        responseBody.Item.CallID,
						Name:      responseBody.Item.Name,
						Arguments: responseBody.Item.Arguments,
					}), nil) {
						return
					}

				case "image_generation_call":
					image, err := base64.StdEncoding.DecodeString(responseBody.Item.Result)
					if err != nil {
						logger.Warn("dropping undecodable generated image", "error", err)
						continue
					}
					format := responseBody.Item.OutputFormat
					if format == "" {
						format = "png"
					}
					if !yield(llms.NewImageChunk(image, "image/"+format), nil) {
						return
					}
				}

			case streamingEventResponseFailed, streamingEventError:
				message := gjson.Get(chunk, "response.error.message").String()
				if message == "" {
					message = gjson.Get(chunk, "message").String()
				}
				fail(fmt.Errorf("response failed: %s", message))
				return

			case streamingEventResponseCompleted:
				usage.TotalTime = time.Since(startTime).Seconds()

				var responseBody streamingBodyResponseCompleted
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					fail(fmt.Errorf("error unmarshalling JSON: %w", err))
					return
				}
				if u := responseBody.Response.Usage; u != nil {
					usage.InputTokens = u.InputTokens
					usage.OutputTokens = u.OutputTokens
					usage.TotalTokens = u.TotalTokens
					if u.InputTokensDetails != nil {
						usage.InputTokensDetails = &llms.InputTokensDetails{CachedTokens: u.InputTokensDetails.CachedTokens}
					}
					if u.OutputTokensDetails != nil {
						usage.OutputTokensDetails = &llms.OutputTokensDetails{ReasoningTokens: u.OutputTokensDetails.ReasoningTokens}
					}
					span.SetAttributes(
						attribute.Int("usage.input", usage.InputTokens),
						attribute.Int("usage.output", usage.OutputTokens),
						attribute.Int("usage.total", usage.TotalTokens),
					)
				}
				if !yield(llms.NewUsageChunk(usage, utils.Ptr(responseBody.Response.Status)), nil) {
					return
				}
			}
			event = ""
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type requestBody struct {
	Model           string                `json:"model"`
	Input           []openAIMessage       `json:"input"`
	Stream          bool                  `json:"stream"`
	ToolChoice      *string               `json:"tool_choice,omitempty"`
	Tools           []openAITool          `json:"tools,omitempty"`
	MaxOutputTokens *int                  `json:"max_output_tokens,omitempty"`
	Reasoning       *requestBodyReasoning `json:"reasoning,omitempty"`
}

type requestBodyReasoning struct {
	Effort  *string `json:"effort,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

type streamingEventType string

const (
	streamingEventResponseOutputTextDelta           streamingEventType = "response.output_text.delta"
	streamingEventResponseOutputItemDone            streamingEventType = "response.output_item.done"
	streamingEventResponseReasoningTextDelta        streamingEventType = "response.reasoning_text.delta"
	streamingEventResponseReasoningSummaryTextDelta streamingEventType = "response.reasoning_summary_text.delta"
	streamingEventResponseCompleted                 streamingEventType = "response.completed"
	streamingEventResponseFailed                    streamingEventType = "response.failed"
	streamingEventError                             streamingEventType = "error"
)

type streamingBodyResponseTextDelta struct {
	Delta string `json:"delta"`
}

type streamingBodyOutputItemDone struct {
	Item struct {
		Type string `json:"type"`

		// function_call
		Arguments string `json:"arguments"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`

		// image_generation_call
		Result       string `json:"result"`
		OutputFormat string `json:"output_format"`
	} `json:"item"`
}

// streamingBodyResponseCompleted is emitted when the model response is complete
type streamingBodyResponseCompleted struct {
	Response struct {
		Status string             `json:"status"`
		Usage  *responseBodyUsage `json:"usage"`
	} `json:"response"`
}

// responseBodyUsage represents token usage details including input tokens,
// output tokens, a breakdown of output tokens, and the total tokens used.
type responseBodyUsage struct {
	InputTokens        int `json:"input_tokens"`
	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokens        int `json:"output_tokens"`
	OutputTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	TotalTokens int `json:"total_tokens"`
}
