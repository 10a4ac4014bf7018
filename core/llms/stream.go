package llms

import "context"

// Stream is a single-pass, order-preserving sequence of chunks produced by a
// backend. An error yielded by the sequence terminates it.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamReasoningChunk interface {
	StreamChunk
	Reasoning() string
	Channel() string
}

type StreamReasoningSignatureChunk interface {
	StreamChunk
	ReasoningSignature() string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

// StreamImageChunk carries an image generated by the model. The payload is
// not validated by the backend.
type StreamImageChunk interface {
	StreamChunk
	Image() []byte
	MIMEType() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// InputTokensDetails represents a detailed breakdown of the input tokens.
	InputTokensDetails *InputTokensDetails
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// OutputTokensDetails represents a detailed breakdown of the output tokens.
	OutputTokensDetails *OutputTokensDetails
	// TotalTokens represents the total number of tokens used.
	TotalTokens int

	// TotalTime represents the total time it took to complete the request.
	//
	// Note: This might be just an approximation.
	TotalTime float64
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.TotalTime += other.TotalTime

	if other.InputTokensDetails != nil {
		if u.InputTokensDetails == nil {
			u.InputTokensDetails = &InputTokensDetails{}
		}
		u.InputTokensDetails.CachedTokens += other.InputTokensDetails.CachedTokens
	}
	if other.OutputTokensDetails != nil {
		if u.OutputTokensDetails == nil {
			u.OutputTokensDetails = &OutputTokensDetails{}
		}
		u.OutputTokensDetails.ReasoningTokens += other.OutputTokensDetails.ReasoningTokens
	}
}

// InputTokensDetails represents a detailed breakdown of the input tokens.
type InputTokensDetails struct {
	// CachedTokens represents the number of tokens that were retrieved from the
	// cache.
	CachedTokens int
}

// OutputTokensDetails represents a detailed breakdown of the output tokens.
type OutputTokensDetails struct {
	// ReasoningTokens represents the number of reasoning tokens.
	ReasoningTokens int
}
