// Package conversations holds conversation history, the stores that persist
// it and the builder that turns it into backend request messages.
package conversations

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-chat/core/llms"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Kind distinguishes regular text messages from messages written as a side
// effect of tool execution or attachment processing.
type Kind string

const (
	KindText        Kind = "text"
	KindAttachment  Kind = "attachment"
	KindSources     Kind = "sources"
	KindPlaceholder Kind = "placeholder"
)

type ToolStatus string

const (
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusFailure ToolStatus = "failure"
)

type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type Message struct {
	ID        string
	Role      Role
	Kind      Kind
	Content   string
	Reasoning string

	// ReasoningSignature is the backend signature over Reasoning. It is only
	// set when the whole reasoning of the round was received.
	ReasoningSignature string

	ToolCalls  []llms.ToolCall
	ToolCallID string
	ToolName   string
	ToolStatus ToolStatus

	Attachments []llms.Attachment
	Sources     []Source

	// Partial marks an assistant message persisted from a cancelled turn. It
	// holds only what had been displayed.
	Partial bool

	CreatedAt time.Time
}

type MessageOption func(*Message)

func NewMessage(role Role, content string, opts ...MessageOption) Message {
	message := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Kind:      KindText,
		Content:   content,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&message)
	}
	return message
}

func WithKind(kind Kind) MessageOption {
	return func(m *Message) {
		m.Kind = kind
	}
}

func WithReasoning(reasoning string) MessageOption {
	return func(m *Message) {
		m.Reasoning = reasoning
	}
}

func WithReasoningSignature(signature string) MessageOption {
	return func(m *Message) {
		m.ReasoningSignature = signature
	}
}

func WithToolCalls(toolCalls ...llms.ToolCall) MessageOption {
	return func(m *Message) {
		m.ToolCalls = append(m.ToolCalls, toolCalls...)
	}
}

// AnsweringToolCall marks a tool message as the result of call.
func AnsweringToolCall(call llms.ToolCall, status ToolStatus) MessageOption {
	return func(m *Message) {
		m.ToolCallID = call.ID
		m.ToolName = call.Name
		m.ToolStatus = status
	}
}

func WithAttachments(attachments ...llms.Attachment) MessageOption {
	return func(m *Message) {
		m.Attachments = append(m.Attachments, attachments...)
	}
}

func WithSources(sources ...Source) MessageOption {
	return func(m *Message) {
		m.Sources = append(m.Sources, sources...)
	}
}

func AsPartial() MessageOption {
	return func(m *Message) {
		m.Partial = true
	}
}

// IsEmpty reports whether an assistant message carries nothing worth keeping.
func (m Message) IsEmpty() bool {
	return m.Content == "" && m.Reasoning == "" && len(m.ToolCalls) == 0 && len(m.Attachments) == 0
}

type Conversation struct {
	ID           string
	Title        string
	Instructions string
	Messages     []Message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewConversation(title, instructions string) Conversation {
	now := time.Now()
	return Conversation{
		ID:           uuid.NewString(),
		Title:        title,
		Instructions: instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Values iterates messages oldest to newest.
func (c Conversation) Values(yield func(Message) bool) {
	for _, message := range c.Messages {
		if !yield(message) {
			return
		}
	}
}

// RValues iterates messages newest to oldest.
func (c Conversation) RValues(yield func(Message) bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if !yield(c.Messages[i]) {
			return
		}
	}
}

// FormatSources renders sources as an indexed listing so that later messages
// can refer to a page by its index.
func FormatSources(sources []Source) string {
	var b strings.Builder
	for i, source := range sources {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s <%s>", i+1, source.Title, source.URL)
		if source.Snippet != "" {
			b.WriteString("\n    ")
			b.WriteString(source.Snippet)
		}
	}
	return b.String()
}
