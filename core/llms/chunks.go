package llms

// Concrete chunk values shared by the backend adapters. Adapters may also
// define their own types as long as they satisfy the Stream*Chunk interfaces.

type ReasoningChunk struct {
	finishReason *string
	reasoning    string
	channel      string
}

func NewReasoningChunk(reasoning string) ReasoningChunk {
	return ReasoningChunk{reasoning: reasoning}
}

func (s ReasoningChunk) FinishReason() *string { return s.finishReason }
func (s ReasoningChunk) Reasoning() string     { return s.reasoning }
func (s ReasoningChunk) Channel() string       { return s.channel }

// ReasoningSignatureChunk carries the provider signature of the reasoning
// streamed before it. It is sent back with that reasoning on later requests.
type ReasoningSignatureChunk struct {
	finishReason *string
	signature    string
}

func NewReasoningSignatureChunk(signature string) ReasoningSignatureChunk {
	return ReasoningSignatureChunk{signature: signature}
}

func (s ReasoningSignatureChunk) FinishReason() *string      { return s.finishReason }
func (s ReasoningSignatureChunk) ReasoningSignature() string { return s.signature }

type ContentChunk struct {
	finishReason *string
	content      string
}

func NewContentChunk(content string) ContentChunk {
	return ContentChunk{content: content}
}

func (s ContentChunk) FinishReason() *string { return s.finishReason }
func (s ContentChunk) Content() string       { return s.content }

type ToolCallChunk struct {
	finishReason *string
	toolCall     ToolCall
}

func NewToolCallChunk(toolCall ToolCall) ToolCallChunk {
	return ToolCallChunk{toolCall: toolCall}
}

func (s ToolCallChunk) FinishReason() *string { return s.finishReason }
func (s ToolCallChunk) ToolCall() ToolCall    { return s.toolCall }

type ImageChunk struct {
	finishReason *string
	image        []byte
	mimeType     string
}

func NewImageChunk(image []byte, mimeType string) ImageChunk {
	return ImageChunk{image: image, mimeType: mimeType}
}

func (s ImageChunk) FinishReason() *string { return s.finishReason }
func (s ImageChunk) Image() []byte         { return s.image }
func (s ImageChunk) MIMEType() string      { return s.mimeType }

type UsageChunk struct {
	finishReason *string
	usage        Usage
}

func NewUsageChunk(usage Usage, finishReason *string) UsageChunk {
	return UsageChunk{usage: usage, finishReason: finishReason}
}

func (s UsageChunk) FinishReason() *string { return s.finishReason }
func (s UsageChunk) Usage() Usage          { return s.usage }
