package orchestration

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-chat/core/llms"
)

// llm is the backend configuration a turn runs against. Turns work on a
// copy taken when they start.
type llm struct {
	backend      llms.Backend
	model        string
	caps         llms.Capabilities
	instructions string
	maxTokens    int
}

func (runtime *llm) set(backend llms.Backend) {
	if runtime == nil {
		return
	}

	runtime.backend = backend
}

func (runtime llm) request(messages []llms.RequestMessage, instructions string, tools []llms.ToolSchema) llms.Request {
	opts := []llms.RequestOption{
		llms.WithInstructions(instructions),
		llms.WithMessages(messages...),
		llms.WithReasoning(runtime.caps.Reasoning),
	}
	if runtime.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(runtime.maxTokens))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools...))
	}
	return llms.NewRequest(runtime.model, opts...)
}

// stream runs one inference and hands every chunk to onChunk in delivery
// order. It stops at the first stream error or when ctx is done.
func (runtime llm) stream(ctx context.Context, request llms.Request, onChunk func(llms.StreamChunk)) error {
	stream := runtime.backend.StreamingInfer(ctx, request)
	if stream == nil {
		return errors.New("backend returned no stream")
	}

	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if chunk != nil {
			onChunk(chunk)
		}
	}
	return nil
}
