package openai

import (
	"encoding/base64"

	"github.com/koscakluka/ema-chat/core/llms"
)

type openAIMessage struct {
	Type messageType `json:"type"`

	Role messageRole `json:"role,omitempty"`
	// Content is either a plain string or a list of contentPart values when
	// the message carries images.
	Content any `json:"content,omitempty"`

	ToolCallID        string `json:"call_id,omitempty"`
	ToolCallName      string `json:"name,omitempty"`
	ToolCallArguments string `json:"arguments,omitempty"`
	ToolCallOutput    string `json:"output,omitempty"`
	ToolCallStatus    string `json:"status,omitempty"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type messageRole string

const (
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type messageType string

const (
	messageTypeMessage            messageType = "message"
	messageTypeFunctionCall       messageType = "function_call"
	messageTypeFunctionCallOutput messageType = "function_call_output"
)

type openAITool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func toOpenAIMessages(instructions string, requestMessages []llms.RequestMessage) []openAIMessage {
	messages := []openAIMessage{}
	if instructions != "" {
		messages = append(messages, openAIMessage{
			Role:    messageRoleDeveloper,
			Type:    messageTypeMessage,
			Content: instructions,
		})
	}

	for _, msg := range requestMessages {
		switch msg.Role {
		case llms.MessageRoleSystem:
			messages = append(messages, openAIMessage{
				Type:    messageTypeMessage,
				Role:    messageRoleDeveloper,
				Content: msg.Content,
			})

		case llms.MessageRoleUser:
			messages = append(messages, openAIMessage{
				Type:    messageTypeMessage,
				Role:    messageRoleUser,
				Content: userContent(msg),
			})

		case llms.MessageRoleAssistant:
			if msg.Content != "" {
				messages = append(messages, openAIMessage{
					Type:    messageTypeMessage,
					Role:    messageRoleAssistant,
					Content: msg.Content,
				})
			}
			for _, toolCall := range msg.ToolCalls {
				messages = append(messages, openAIMessage{
					Type:              messageTypeFunctionCall,
					ToolCallID:        toolCall.ID,
					ToolCallName:      toolCall.Name,
					ToolCallArguments: toolCall.Arguments,
					ToolCallStatus:    "completed",
				})
			}

		case llms.MessageRoleTool:
			messages = append(messages, openAIMessage{
				Type:           messageTypeFunctionCallOutput,
				ToolCallID:     msg.ToolCallID,
				ToolCallOutput: msg.Content,
			})
		}
	}
	return messages
}

func userContent(msg llms.RequestMessage) any {
	var images []llms.Attachment
	for _, attachment := range msg.Attachments {
		if attachment.Kind == llms.AttachmentKindImage {
			images = append(images, attachment)
		}
	}
	if len(images) == 0 {
		return msg.Content
	}

	parts := []contentPart{}
	if msg.Content != "" {
		parts = append(parts, contentPart{Type: "input_text", Text: msg.Content})
	}
	for _, image := range images {
		parts = append(parts, contentPart{
			Type:     "input_image",
			ImageURL: "data:" + image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(image.Data),
		})
	}
	return parts
}

func toOpenAITools(schemas []llms.ToolSchema) []openAITool {
	tools := make([]openAITool, 0, len(schemas))
	for _, schema := range schemas {
		tools = append(tools, openAITool{
			Type:        "function",
			Name:        schema.Name,
			Description: schema.Description,
			Parameters:  schema.Parameters,
		})
	}
	return tools
}
