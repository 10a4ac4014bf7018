package llms

import "context"

// Backend is a streaming inference backend (remote HTTP API, local
// OpenAI-compatible server, ...).
type Backend interface {
	StreamingInfer(ctx context.Context, request Request) Stream
}

// Capabilities describes what a model accepts. The zero value offers plain
// text only.
type Capabilities struct {
	Tools     bool
	Images    bool
	Reasoning bool
	// ContextWindow is the token budget for request messages; 0 disables
	// trimming.
	ContextWindow int
}

type Request struct {
	Model        string
	Instructions string
	Messages     []RequestMessage
	Tools        []ToolSchema
	MaxTokens    int
	Reasoning    bool
}

type RequestOption func(*Request)

func NewRequest(model string, opts ...RequestOption) Request {
	request := Request{Model: model}
	for _, opt := range opts {
		opt(&request)
	}
	return request
}

// WithInstructions sets the system instructions. Repeating this option
// overwrites the previous instructions.
func WithInstructions(instructions string) RequestOption {
	return func(r *Request) {
		r.Instructions = instructions
	}
}

// WithMessages appends messages to the request.
func WithMessages(messages ...RequestMessage) RequestOption {
	return func(r *Request) {
		r.Messages = append(r.Messages, messages...)
	}
}

// WithTools appends tools to the request.
func WithTools(tools ...ToolSchema) RequestOption {
	return func(r *Request) {
		r.Tools = append(r.Tools, tools...)
	}
}

func WithMaxTokens(maxTokens int) RequestOption {
	return func(r *Request) {
		r.MaxTokens = maxTokens
	}
}

// WithReasoning asks the backend to stream its reasoning where supported.
func WithReasoning(enabled bool) RequestOption {
	return func(r *Request) {
		r.Reasoning = enabled
	}
}
