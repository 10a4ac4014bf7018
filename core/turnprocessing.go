package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/events"
	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/pacing"
	"github.com/koscakluka/ema-chat/core/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// turnRun drives a single turn. It is the only writer of the conversation
// history while the turn is active.
type turnRun struct {
	turn        *activeTurn
	runtime     llm
	settings    turnSettings
	store       conversations.Store
	builder     *conversations.Builder
	coordinator *tools.Coordinator

	conversation conversations.Conversation
	started      time.Time
	result       TurnResult
}

func (r *turnRun) emit(event events.Event) {
	r.turn.emit(event)
}

func (r *turnRun) run(ctx context.Context, input UserInput) (TurnResult, error) {
	r.emit(events.NewTurnStarted(r.turn.eventOpts...))

	conversation, err := r.store.Load(ctx, r.turn.conversationID)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("failed to load conversation: %w", err))
	}
	r.conversation = conversation

	if err := r.addUserInput(ctx, input); err != nil {
		if ctx.Err() != nil {
			return r.cancelled(ctx, nil)
		}
		return r.fail(ctx, err)
	}

	for round := 1; ; round++ {
		if round > r.settings.maxRounds {
			return r.fail(ctx, fmt.Errorf("%w: limit is %d", ErrMaxRoundsExceeded, r.settings.maxRounds))
		}
		if err := r.turn.transition(TurnStateStreaming); err != nil {
			return r.fail(ctx, err)
		}

		state, err := r.streamRound(ctx, round)
		if ctx.Err() != nil {
			return r.cancelled(ctx, state)
		}
		if err != nil {
			return r.fail(ctx, err)
		}

		calls := state.calls()
		if len(calls) == 0 || !r.toolsEnabled() {
			return r.complete(ctx)
		}

		if err := r.turn.transition(TurnStateToolsPending); err != nil {
			return r.fail(ctx, err)
		}
		resolved, err := r.resolveTools(calls)
		if err != nil {
			return r.fail(ctx, err)
		}

		if err := r.turn.transition(TurnStateExecuting); err != nil {
			return r.fail(ctx, err)
		}
		err = r.executeTools(ctx, calls, resolved)
		if ctx.Err() != nil {
			return r.cancelled(ctx, nil)
		}
		if err != nil {
			return r.fail(ctx, err)
		}
	}
}

func (r *turnRun) toolsEnabled() bool {
	return r.runtime.caps.Tools && !r.settings.toolsDisabled
}

func (r *turnRun) instructions() string {
	switch {
	case r.settings.instructions != nil:
		return *r.settings.instructions
	case r.conversation.Instructions != "":
		return r.conversation.Instructions
	}
	return r.runtime.instructions
}

func (r *turnRun) request() llms.Request {
	var schemas []llms.ToolSchema
	if r.toolsEnabled() {
		schemas = r.coordinator.Registry().Schemas()
	}
	messages := r.builder.BuildRequestMessages(r.conversation, r.runtime.caps)
	return r.runtime.request(messages, r.instructions(), schemas)
}

func (r *turnRun) append(ctx context.Context, messages ...conversations.Message) error {
	if err := r.store.Append(ctx, r.conversation.ID, messages...); err != nil {
		return err
	}
	r.conversation.Messages = append(r.conversation.Messages, messages...)
	return nil
}

func (r *turnRun) addUserInput(ctx context.Context, input UserInput) error {
	if input.isEmpty() {
		return nil
	}

	var (
		accepted     []llms.Attachment
		placeholders []conversations.Message
	)
	for i, attachment := range input.Attachments {
		attachment.Name = attachmentName(attachment, i)
		if attachment.Kind == llms.AttachmentKindImage {
			mimeType, err := validateImage(attachment.Data, attachment.MIMEType)
			if err != nil {
				logger.Warn("rejected user image", "name", attachment.Name, "error", err)
				r.emit(events.NewAttachmentRejected(string(attachment.Kind), err.Error(), r.turn.eventOpts...))
				placeholders = append(placeholders, conversations.NewMessage(conversations.RoleUser,
					fmt.Sprintf("[image %q could not be processed: %v]", attachment.Name, err),
					conversations.WithKind(conversations.KindPlaceholder)))
				continue
			}
			attachment.MIMEType = mimeType
		}
		accepted = append(accepted, attachment)
	}

	message := conversations.NewMessage(conversations.RoleUser, input.Text, conversations.WithAttachments(accepted...))
	if err := r.append(ctx, append([]conversations.Message{message}, placeholders...)...); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}

	r.emit(events.NewUserMessageAdded(message.ID, input.Text, len(accepted), r.turn.eventOpts...))
	for _, attachment := range accepted {
		r.emit(events.NewAttachmentAdded(message.ID, string(attachment.Kind), attachment.MIMEType, len(attachment.Data), r.turn.eventOpts...))
	}
	return nil
}

func (r *turnRun) streamRound(ctx context.Context, round int) (*roundState, error) {
	ctx, span := tracer.Start(ctx, "stream round", trace.WithAttributes(attribute.Int("turn.round", round)))
	defer span.End()
	roundsCounter.Add(ctx, 1)
	r.result.Rounds = round

	state := newRoundState(round)
	r.turn.beginRound(state)
	r.emit(events.NewAssistantResponseStarted(state.messageID, round, r.turn.eventOpts...))

	request := r.request()
	err := guarded("backend stream", func() error {
		return r.runtime.stream(ctx, request, func(chunk llms.StreamChunk) {
			r.handleChunk(ctx, state, chunk)
		})
	})
	if ctx.Err() != nil {
		return state, ctx.Err()
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrBackendStream, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	if err := r.turn.balancer.Wait(ctx); err != nil {
		return state, err
	}
	if ctx.Err() != nil {
		return state, ctx.Err()
	}

	if state.collapse() {
		r.emit(events.NewAssistantReasoningCollapsed(state.messageID, r.turn.eventOpts...))
	}
	if state.empty() {
		err := ErrEmptyResponse
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	message := state.message()
	if !message.IsEmpty() {
		if err := r.append(ctx, message); err != nil {
			err = fmt.Errorf("failed to persist assistant message: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return state, err
		}
	}
	state.markPersisted()

	r.result.Text = message.Content
	r.result.ToolCalls += len(message.ToolCalls)
	span.SetAttributes(
		attribute.Int("turn.round.tool_calls", len(message.ToolCalls)),
		attribute.Int("turn.round.images", state.imageCount()),
	)

	r.emit(events.NewAssistantResponseFinal(state.messageID, message.Content, message.Reasoning, len(message.ToolCalls), r.turn.eventOpts...))
	return state, nil
}

func (r *turnRun) handleChunk(ctx context.Context, state *roundState, chunk llms.StreamChunk) {
	switch chunk := chunk.(type) {
	case llms.StreamReasoningChunk:
		state.addReasoning(chunk.Reasoning())
		r.turn.balancer.Add(pacing.ChannelReasoning, chunk.Reasoning())

	case llms.StreamReasoningSignatureChunk:
		state.setReasoningSignature(chunk.ReasoningSignature())

	case llms.StreamContentChunk:
		r.turn.adapt(state.addText(chunk.Content()))
		r.turn.balancer.Add(pacing.ChannelText, chunk.Content())

	case llms.StreamToolCallChunk:
		state.addToolCall(chunk.ToolCall())

	case llms.StreamImageChunk:
		r.addImage(ctx, state, chunk.Image(), chunk.MIMEType())

	case llms.StreamUsageChunk:
		usage := chunk.Usage()
		r.result.Usage.Add(usage)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("llm.usage.input_tokens", usage.InputTokens),
			attribute.Int("llm.usage.output_tokens", usage.OutputTokens),
		)
	}
}

func (r *turnRun) addImage(ctx context.Context, state *roundState, data []byte, declared string) {
	mimeType, err := validateImage(data, declared)
	if err != nil {
		logger.Warn("dropping invalid generated image", "turn_id", r.turn.id, "error", err)
		imagesDroppedCounter.Add(ctx, 1)
		r.emit(events.NewAttachmentRejected(string(llms.AttachmentKindImage), err.Error(), r.turn.eventOpts...))
		return
	}

	attachment := llms.Attachment{Kind: llms.AttachmentKindImage, MIMEType: mimeType, Data: data}
	attachment.Name = attachmentName(attachment, state.imageCount())
	state.addImage(attachment)

	message := conversations.NewMessage(conversations.RoleAssistant, "",
		conversations.WithKind(conversations.KindAttachment),
		conversations.WithAttachments(attachment))
	if err := r.append(ctx, message); err != nil {
		logger.Warn("failed to persist generated image", "turn_id", r.turn.id, "error", err)
		return
	}
	r.emit(events.NewAttachmentAdded(message.ID, string(attachment.Kind), mimeType, len(data), r.turn.eventOpts...))
}

func (r *turnRun) resolveTools(calls []llms.ToolCall) ([]tools.Tool, error) {
	resolved := make([]tools.Tool, 0, len(calls))
	for _, call := range calls {
		tool := r.coordinator.Resolve(call)
		if tool == nil {
			return nil, fmt.Errorf("%w: %s", tools.ErrToolNotFound, call.Name)
		}
		resolved = append(resolved, tool)
	}
	return resolved, nil
}

// executeTools runs the calls one after another in emission order. The
// result of a call interrupted by cancellation is not kept.
func (r *turnRun) executeTools(ctx context.Context, calls []llms.ToolCall, resolved []tools.Tool) error {
	writer := tools.HistoryWriterFunc(r.writeSideMessage)
	for i, call := range calls {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result := r.coordinator.Execute(ctx, resolved[i], call, writer, r.turn.eventOpts...)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		message := conversations.NewMessage(conversations.RoleTool, result.Text, conversations.AnsweringToolCall(call, result.Status))
		if err := r.append(ctx, message); err != nil {
			return fmt.Errorf("failed to persist result of tool %q: %w", call.Name, err)
		}
	}
	return nil
}

func (r *turnRun) writeSideMessage(ctx context.Context, message conversations.Message) error {
	if err := r.append(ctx, message); err != nil {
		return err
	}

	switch message.Kind {
	case conversations.KindSources:
		r.emit(events.NewSourcesAdded(message.ID, len(message.Sources), r.turn.eventOpts...))
	case conversations.KindAttachment:
		for _, attachment := range message.Attachments {
			r.emit(events.NewAttachmentAdded(message.ID, string(attachment.Kind), attachment.MIMEType, len(attachment.Data), r.turn.eventOpts...))
		}
	}
	return nil
}

func (r *turnRun) complete(ctx context.Context) (TurnResult, error) {
	r.finish(ctx, TurnStateCompleted)
	r.emit(events.NewTurnCompleted(r.result.Rounds, r.turn.eventOpts...))
	return r.result, nil
}

func (r *turnRun) fail(ctx context.Context, err error) (TurnResult, error) {
	r.turn.balancer.Cancel()

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("turn failed", "conversation_id", r.turn.conversationID, "turn_id", r.turn.id, "error", err)

	r.finish(ctx, TurnStateFailed)
	r.emit(events.NewTurnFailed(err.Error(), r.turn.eventOpts...))
	return r.result, err
}

// cancelled ends the turn after a user stop. Whatever of the unfinished
// round had been displayed is kept as a partial message.
func (r *turnRun) cancelled(ctx context.Context, state *roundState) (TurnResult, error) {
	r.turn.balancer.Cancel()

	if state != nil && !state.isPersisted() {
		text, reasoning := state.displayed()
		r.result.Text = text
		if text != "" || reasoning != "" {
			persistCtx, cancel := detachedContext(ctx)
			defer cancel()

			message := conversations.NewMessage(conversations.RoleAssistant, text,
				conversations.WithReasoning(reasoning),
				conversations.AsPartial())
			message.ID = state.messageID
			if err := r.append(persistCtx, message); err != nil {
				logger.Warn("failed to persist partial response", "turn_id", r.turn.id, "error", err)
			}
		}
	}

	logger.Info("turn cancelled", "conversation_id", r.turn.conversationID, "turn_id", r.turn.id, "rounds", r.result.Rounds)
	r.finish(ctx, TurnStateCancelled)
	r.emit(events.NewTurnCancelled(r.turn.eventOpts...))
	return r.result, nil
}

func (r *turnRun) finish(ctx context.Context, state TurnState) {
	if err := r.turn.transition(state); err != nil {
		logger.Error("failed to record final turn state", "turn_id", r.turn.id, "error", err)
	}
	r.result.State = r.turn.State()
	r.result.Duration = time.Since(r.started)

	stateAttr := metric.WithAttributes(attribute.String("turn.state", state.String()))
	turnsCounter.Add(ctx, 1, stateAttr)
	turnDurationHistogram.Record(ctx, r.result.Duration.Seconds(), stateAttr)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("turn.state", state.String()),
		attribute.Int("turn.rounds", r.result.Rounds),
		attribute.Int("turn.tool_calls", r.result.ToolCalls),
	)
}
