package tools

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/events"
	"github.com/koscakluka/ema-chat/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const DefaultMaxOutputBytes = 64 * 1024

// Coordinator resolves and executes tool calls on behalf of the
// orchestrator. Execution failures are reported as failed results, never as
// errors.
type Coordinator struct {
	registry       *Registry
	emit           func(events.Event)
	maxOutputBytes int
}

type CoordinatorOption func(*Coordinator)

// WithEmitter sets the function that receives tool status events.
func WithEmitter(emit func(events.Event)) CoordinatorOption {
	return func(c *Coordinator) {
		c.emit = emit
	}
}

// WithMaxOutputBytes sets the size above which tool text is truncated.
// Non-positive values keep the default.
func WithMaxOutputBytes(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxOutputBytes = n
		}
	}
}

func NewCoordinator(registry *Registry, opts ...CoordinatorOption) *Coordinator {
	coordinator := &Coordinator{
		registry:       registry,
		emit:           func(events.Event) {},
		maxOutputBytes: DefaultMaxOutputBytes,
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator
}

func (c *Coordinator) Registry() *Registry { return c.registry }

// Resolve finds the tool for call or returns nil.
func (c *Coordinator) Resolve(call llms.ToolCall) Tool {
	tool := c.registry.Resolve(call.Name)
	if tool == nil {
		logger.Warn("tool call names an unknown tool", "tool", call.Name, "tool_call_id", call.ID)
	}
	return tool
}

// Execute runs tool for call. Side-channel messages (sources, attachments,
// placeholders) go to writer, which may be nil.
func (c *Coordinator) Execute(ctx context.Context, tool Tool, call llms.ToolCall, writer HistoryWriter, opts ...events.BaseOption) Result {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)

	c.emit(events.NewToolCallStatus(call.ID, call.Name, events.ToolPhaseLoading, opts...))
	c.emit(events.NewToolCallStarted(call.ID, call.Name, call.Arguments, opts...))
	c.emit(events.NewToolCallStatus(call.ID, call.Name, events.ToolPhaseUtilizing, opts...))

	output, err := runTool(ctx, tool, call.Arguments)
	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", call.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("tool execution failed", "tool", call.Name, "tool_call_id", call.ID, "error", err)
		toolCallsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.status", string(conversations.ToolStatusFailure))))

		c.emit(events.NewToolCallStatus(call.ID, call.Name, events.ToolPhaseFailed, opts...))
		c.emit(events.NewToolCallFailed(call.ID, call.Name, err.Error(), opts...))
		text, truncated := Truncate("Error: "+err.Error(), c.maxOutputBytes)
		return Result{Status: conversations.ToolStatusFailure, Text: text, Truncated: truncated}
	}

	result := Result{Status: conversations.ToolStatusSuccess, Text: output.Text, Images: output.Images, Sources: output.Sources}
	if len(output.Sources) > 0 {
		result.Text = conversations.FormatSources(output.Sources)
		if output.Text != "" {
			result.Text += "\n\n" + output.Text
		}
		c.write(ctx, writer, conversations.NewMessage(conversations.RoleAssistant, "",
			conversations.WithKind(conversations.KindSources),
			conversations.WithSources(output.Sources...)))
	}
	if len(output.Images) > 0 {
		c.write(ctx, writer, conversations.NewMessage(conversations.RoleAssistant, "",
			conversations.WithKind(conversations.KindAttachment),
			conversations.WithAttachments(output.Images...)))
	}
	for _, clip := range output.Audio {
		attachment, err := audioAttachment(clip)
		if err != nil {
			logger.Warn("failed to process tool audio", "tool", call.Name, "error", err)
			c.write(ctx, writer, conversations.NewMessage(conversations.RoleAssistant,
				fmt.Sprintf("[audio %q from %s could not be processed: %v]", clip.Name, call.Name, err),
				conversations.WithKind(conversations.KindPlaceholder)))
			continue
		}
		result.Audio = append(result.Audio, attachment)
		c.write(ctx, writer, conversations.NewMessage(conversations.RoleAssistant, "",
			conversations.WithKind(conversations.KindAttachment),
			conversations.WithAttachments(attachment)))
	}

	if text, truncated := Truncate(result.Text, c.maxOutputBytes); truncated {
		logger.Info("truncated tool output", "tool", call.Name, "bytes", len(result.Text), "limit", c.maxOutputBytes)
		span.SetAttributes(attribute.Int("tool.output_bytes", len(result.Text)))
		truncationsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", call.Name)))
		result.Text = text
		result.Truncated = true
	}
	span.SetAttributes(attribute.Bool("tool.output_truncated", result.Truncated))
	toolCallsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.status", string(conversations.ToolStatusSuccess))))

	c.emit(events.NewToolCallStatus(call.ID, call.Name, events.ToolPhaseCompleted, opts...))
	c.emit(events.NewToolCallCompleted(call.ID, call.Name, result.Text, result.Truncated, opts...))
	return result
}

func (c *Coordinator) write(ctx context.Context, writer HistoryWriter, message conversations.Message) {
	if writer == nil {
		return
	}
	if err := writer.WriteMessage(ctx, message); err != nil {
		logger.Warn("failed to write tool side message", "kind", message.Kind, "error", err)
	}
}

func runTool(ctx context.Context, tool Tool, arguments string) (output Output, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("tool panicked: %v", recovered)
		}
	}()
	return tool.Execute(ctx, arguments)
}

func audioAttachment(clip AudioOutput) (llms.Attachment, error) {
	attachment := llms.Attachment{Kind: llms.AttachmentKindAudio, Name: clip.Name, MIMEType: clip.MIMEType, Data: clip.Data}
	if clip.MIMEType != "" {
		return attachment, nil
	}
	wav, err := audio.ToWAV(clip.Data, clip.Encoding)
	if err != nil {
		return llms.Attachment{}, err
	}
	attachment.MIMEType = audio.WAVMIMEType
	attachment.Data = wav
	return attachment, nil
}

// Truncate cuts text to at most limit bytes on a rune boundary and appends a
// marker saying how much was kept.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || len(text) <= limit {
		return text, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + fmt.Sprintf("\n\n[output truncated: %d of %d bytes shown]", cut, len(text)), true
}
