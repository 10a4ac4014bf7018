// Package gemini streams from the Gemini API through google.golang.org/genai.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-chat/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

type Backend struct {
	client *genai.Client
}

type Option func(*genai.ClientConfig)

func WithBaseURL(baseURL string) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPClient = client
	}
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Backend, error) {
	config := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(config)
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	return &Backend{client: client}, nil
}

func (b *Backend) StreamingInfer(_ context.Context, request llms.Request) llms.Stream {
	return &Stream{client: b.client, request: request}
}

type Stream struct {
	client  *genai.Client
	request llms.Request
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.request.Model))

		contents, system := toContents(s.request.Messages)
		if s.request.Instructions != "" {
			system = append([]*genai.Part{genai.NewPartFromText(s.request.Instructions)}, system...)
		}

		config := &genai.GenerateContentConfig{}
		if len(system) > 0 {
			config.SystemInstruction = &genai.Content{Parts: system}
		}
		if len(s.request.Tools) > 0 {
			config.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(s.request.Tools)}}
		}
		if s.request.MaxTokens > 0 {
			config.MaxOutputTokens = int32(s.request.MaxTokens)
		}
		if s.request.Reasoning {
			config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		}

		startTime := time.Now()
		var usage *llms.Usage
		var finishReason *string
		for resp, err := range s.client.Models.GenerateContentStream(ctx, s.request.Model, contents, config) {
			if err != nil {
				err = fmt.Errorf("error reading streamed response: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(nil, err)
				return
			}

			if resp.UsageMetadata != nil {
				usage = &llms.Usage{
					InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
				}
				if thoughts := resp.UsageMetadata.ThoughtsTokenCount; thoughts > 0 {
					usage.OutputTokensDetails = &llms.OutputTokensDetails{ReasoningTokens: int(thoughts)}
				}
			}

			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			candidate := resp.Candidates[0]
			if candidate.FinishReason != "" {
				reason := string(candidate.FinishReason)
				finishReason = &reason
			}

			for _, part := range candidate.Content.Parts {
				var chunk llms.StreamChunk
				switch {
				case part.FunctionCall != nil:
					arguments, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						err = fmt.Errorf("error marshalling function call arguments: %w", err)
						span.RecordError(err)
						yield(nil, err)
						return
					}
					if part.FunctionCall.Args == nil {
						arguments = []byte("{}")
					}
					id := part.FunctionCall.ID
					if id == "" {
						id = uuid.NewString()
					}
					chunk = llms.NewToolCallChunk(llms.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: string(arguments)})

				case part.InlineData != nil:
					chunk = llms.NewImageChunk(part.InlineData.Data, part.InlineData.MIMEType)

				case part.Thought && part.Text != "":
					chunk = llms.NewReasoningChunk(part.Text)

				case part.Text != "":
					chunk = llms.NewContentChunk(part.Text)

				default:
					continue
				}
				if !yield(chunk, nil) {
					return
				}
			}
		}

		if usage != nil {
			usage.TotalTime = time.Since(startTime).Seconds()
			span.SetAttributes(
				attribute.Int("usage.input", usage.InputTokens),
				attribute.Int("usage.output", usage.OutputTokens),
			)
			yield(llms.NewUsageChunk(*usage, finishReason), nil)
		}
	}
}
