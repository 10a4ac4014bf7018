package conversations

import (
	"fmt"
	"strings"

	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/tiktoken-go/tokenizer"
)

const (
	// imageTokenEstimate approximates the cost of one image in the prompt.
	imageTokenEstimate = 765
	// messageTokenOverhead covers role markers and separators per message.
	messageTokenOverhead = 4
)

// Builder turns a conversation into request messages a backend accepts.
type Builder struct {
	codec tokenizer.Codec
}

type BuilderOption func(*Builder)

// WithEncoding selects the tokenizer used for context window trimming.
func WithEncoding(encoding tokenizer.Encoding) BuilderOption {
	return func(b *Builder) {
		codec, err := tokenizer.Get(encoding)
		if err != nil {
			logger.Warn("unknown tokenizer encoding, estimating token counts", "encoding", encoding, "error", err)
			return
		}
		b.codec = codec
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	builder := &Builder{}
	if codec, err := tokenizer.Get(tokenizer.O200kBase); err == nil {
		builder.codec = codec
	} else {
		logger.Warn("failed to load tokenizer, estimating token counts", "error", err)
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder
}

// exchange is a group of request messages that must be kept or trimmed
// together.
type exchange struct {
	messages []llms.RequestMessage
	system   bool
}

// BuildRequestMessages converts the conversation history to request
// messages. Each assistant message with tool calls is immediately followed by
// its tool results; calls without a result and results without a call are
// dropped. When caps.ContextWindow is set the oldest exchanges are dropped
// until the request fits.
func (b *Builder) BuildRequestMessages(conversation Conversation, caps llms.Capabilities) []llms.RequestMessage {
	exchanges := b.group(conversation.Messages, caps)

	if caps.ContextWindow > 0 {
		exchanges = b.trim(exchanges, b.count(conversation.Instructions), caps.ContextWindow)
	}

	messages := []llms.RequestMessage{}
	for _, exchange := range exchanges {
		messages = append(messages, exchange.messages...)
	}
	return messages
}

func (b *Builder) group(history []Message, caps llms.Capabilities) []exchange {
	exchanges := []exchange{}
	for i := 0; i < len(history); i++ {
		message := history[i]

		switch {
		case message.Role == RoleTool:
			logger.Debug("dropping orphaned tool result", "tool_call_id", message.ToolCallID)

		case message.Role == RoleAssistant && len(message.ToolCalls) > 0:
			// Tool results and the side-channel messages written while the
			// tools ran follow the assistant message.
			end := i + 1
			for end < len(history) && (history[end].Role == RoleTool || history[end].Kind != KindText) {
				end++
			}
			exchanges = append(exchanges, b.toolExchange(message, history[i+1:end], caps))
			i = end - 1

		default:
			if request, ok := b.requestMessage(message, caps); ok {
				exchanges = append(exchanges, exchange{
					messages: []llms.RequestMessage{request},
					system:   message.Role == RoleSystem,
				})
			}
		}
	}
	return exchanges
}

func (b *Builder) toolExchange(assistant Message, following []Message, caps llms.Capabilities) exchange {
	results := map[string]Message{}
	var sideChannel []llms.RequestMessage
	for _, message := range following {
		if message.Role == RoleTool {
			if _, ok := results[message.ToolCallID]; ok {
				logger.Debug("dropping duplicate tool result", "tool_call_id", message.ToolCallID)
				continue
			}
			results[message.ToolCallID] = message
			continue
		}
		if request, ok := b.requestMessage(message, caps); ok {
			sideChannel = append(sideChannel, request)
		}
	}

	request := llms.RequestMessage{Role: llms.MessageRoleAssistant, Content: assistant.Content}
	if assistant.ReasoningSignature != "" {
		request.Reasoning = assistant.Reasoning
		request.ReasoningSignature = assistant.ReasoningSignature
	}
	var toolMessages []llms.RequestMessage
	for _, call := range assistant.ToolCalls {
		result, ok := results[call.ID]
		if !ok {
			logger.Debug("dropping tool call without result", "tool_call_id", call.ID, "tool", call.Name)
			continue
		}
		delete(results, call.ID)
		request.ToolCalls = append(request.ToolCalls, call)
		toolMessages = append(toolMessages, llms.RequestMessage{
			Role:       llms.MessageRoleTool,
			Content:    result.Content,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    result.ToolStatus == ToolStatusFailure,
		})
	}
	for id := range results {
		logger.Debug("dropping orphaned tool result", "tool_call_id", id)
	}

	messages := []llms.RequestMessage{}
	if request.Content != "" || len(request.ToolCalls) > 0 {
		messages = append(messages, request)
	}
	messages = append(messages, toolMessages...)
	messages = append(messages, sideChannel...)
	return exchange{messages: messages}
}

func (b *Builder) requestMessage(message Message, caps llms.Capabilities) (llms.RequestMessage, bool) {
	switch message.Kind {
	case KindSources:
		return llms.RequestMessage{
			Role:    llms.MessageRoleUser,
			Content: "Sources:\n" + FormatSources(message.Sources),
		}, len(message.Sources) > 0

	case KindPlaceholder:
		return llms.RequestMessage{Role: llms.MessageRoleUser, Content: message.Content}, message.Content != ""

	case KindAttachment:
		if caps.Images && hasImages(message.Attachments) {
			return llms.RequestMessage{
				Role:        llms.MessageRoleUser,
				Content:     message.Content,
				Attachments: images(message.Attachments),
			}, true
		}
		return llms.RequestMessage{Role: llms.MessageRoleUser, Content: withAttachmentNotes(message.Content, message.Attachments)}, true
	}

	switch message.Role {
	case RoleSystem:
		return llms.RequestMessage{Role: llms.MessageRoleSystem, Content: message.Content}, message.Content != ""

	case RoleUser:
		request := llms.RequestMessage{Role: llms.MessageRoleUser, Content: message.Content}
		if caps.Images {
			request.Attachments = images(message.Attachments)
		} else if len(message.Attachments) > 0 {
			request.Content = withAttachmentNotes(message.Content, message.Attachments)
		}
		return request, request.Content != "" || len(request.Attachments) > 0

	case RoleAssistant:
		return llms.RequestMessage{Role: llms.MessageRoleAssistant, Content: message.Content}, message.Content != ""
	}
	return llms.RequestMessage{}, false
}

func (b *Builder) trim(exchanges []exchange, instructionTokens, window int) []exchange {
	costs := make([]int, len(exchanges))
	total := instructionTokens
	for i, exchange := range exchanges {
		for _, message := range exchange.messages {
			costs[i] += b.messageTokens(message)
		}
		total += costs[i]
	}

	dropped := make([]bool, len(exchanges))
	// The newest exchange is always sent even when it alone exceeds the
	// window.
	for i := 0; i < len(exchanges)-1 && total > window; i++ {
		if exchanges[i].system {
			continue
		}
		dropped[i] = true
		total -= costs[i]
	}

	kept := make([]exchange, 0, len(exchanges))
	for i, exchange := range exchanges {
		if !dropped[i] {
			kept = append(kept, exchange)
		}
	}
	if len(kept) < len(exchanges) {
		logger.Info("trimmed conversation to fit context window", "dropped", len(exchanges)-len(kept), "window", window)
	}
	return kept
}

func (b *Builder) messageTokens(message llms.RequestMessage) int {
	tokens := messageTokenOverhead + b.count(message.Content)
	for _, call := range message.ToolCalls {
		tokens += b.count(call.Name) + b.count(call.Arguments)
	}
	tokens += imageTokenEstimate * len(message.Attachments)
	return tokens
}

func (b *Builder) count(text string) int {
	if text == "" {
		return 0
	}
	if b.codec != nil {
		if n, err := b.codec.Count(text); err == nil {
			return n
		}
	}
	return len(text)/4 + 1
}

func hasImages(attachments []llms.Attachment) bool {
	return len(images(attachments)) > 0
}

func images(attachments []llms.Attachment) []llms.Attachment {
	var images []llms.Attachment
	for _, attachment := range attachments {
		if attachment.Kind == llms.AttachmentKindImage {
			images = append(images, attachment)
		}
	}
	return images
}

// withAttachmentNotes replaces attachments the backend cannot take with a
// textual note.
func withAttachmentNotes(content string, attachments []llms.Attachment) string {
	parts := make([]string, 0, len(attachments)+1)
	if content != "" {
		parts = append(parts, content)
	}
	for _, attachment := range attachments {
		parts = append(parts, fmt.Sprintf("[%s attachment %s (%s) not shown]", attachment.Kind, attachment.Name, attachment.MIMEType))
	}
	return strings.Join(parts, "\n")
}
