package llms

// RequestMessage is a provider-neutral message sent to a backend. Adapters
// translate it into their own wire representation.
type RequestMessage struct {
	Role    MessageRole
	Content string

	// Reasoning and ReasoningSignature are set on assistant messages whose
	// reasoning was signed by the backend. Backends that verify signed
	// reasoning replay both; the others ignore them.
	Reasoning          string
	ReasoningSignature string

	// ToolCalls is set on assistant messages that requested tools. The
	// matching tool messages follow immediately.
	ToolCalls []ToolCall
	// ToolCallID is set on tool messages and refers to the ToolCall it
	// answers.
	ToolCallID string
	// ToolName is the name of the tool a tool message answers. Some
	// providers correlate responses by name rather than by ID.
	ToolName string
	// IsError marks a tool message that reports a failed execution.
	IsError bool

	// Attachments are only forwarded to backends that accept them.
	Attachments []Attachment
}

type ToolCall struct {
	ID   string
	Name string
	// Arguments is the JSON-encoded argument blob exactly as produced by the
	// model. It is never re-encoded.
	Arguments string
}

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindAudio AttachmentKind = "audio"
)

type Attachment struct {
	Kind     AttachmentKind
	MIMEType string
	Name     string
	Data     []byte
}

// ToolSchema describes a tool offered to the model.
type ToolSchema struct {
	Name        string
	Description string
	// Parameters is a JSON schema object describing the tool arguments.
	Parameters map[string]any
}

// Properties returns the "properties" member of the parameter schema.
func (s ToolSchema) Properties() map[string]any {
	if props, ok := s.Parameters["properties"].(map[string]any); ok {
		return props
	}
	return map[string]any{}
}

// Required returns the "required" member of the parameter schema.
func (s ToolSchema) Required() []string {
	switch required := s.Parameters["required"].(type) {
	case []string:
		return required
	case []any:
		names := make([]string, 0, len(required))
		for _, name := range required {
			if s, ok := name.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}
