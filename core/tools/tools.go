// Package tools holds the tool contract, the registry the orchestrator
// resolves tool calls against and the coordinator that executes them.
package tools

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/llms"
)

var (
	// ErrToolNotFound is returned when a tool call names no registered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolAlreadyRegistered is returned when registering a duplicate name.
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolNameEmpty         = errors.New("tool name cannot be empty")
	ErrInvalidArguments      = errors.New("invalid tool arguments")
)

type Tool interface {
	Schema() llms.ToolSchema
	// Execute runs the tool with the JSON arguments produced by the model.
	Execute(ctx context.Context, arguments string) (Output, error)
}

// Output is what a tool produced. Only Text is returned to the model;
// everything else is written to the conversation as separate messages.
type Output struct {
	Text    string
	Images  []llms.Attachment
	Audio   []AudioOutput
	Sources []conversations.Source
}

// AudioOutput is audio produced by a tool. Data with a MIMEType is stored as
// is, otherwise it is raw PCM described by Encoding and gets wrapped as WAV.
type AudioOutput struct {
	Name     string
	MIMEType string
	Encoding audio.EncodingInfo
	Data     []byte
}

// Result is the outcome of one tool call as recorded in history.
type Result struct {
	Status    conversations.ToolStatus
	Text      string
	Images    []llms.Attachment
	Audio     []llms.Attachment
	Sources   []conversations.Source
	Truncated bool
}

// HistoryWriter receives the messages a tool call writes besides its
// result: attachments, sources and placeholders.
type HistoryWriter interface {
	WriteMessage(ctx context.Context, message conversations.Message) error
}

type HistoryWriterFunc func(ctx context.Context, message conversations.Message) error

func (f HistoryWriterFunc) WriteMessage(ctx context.Context, message conversations.Message) error {
	return f(ctx, message)
}
