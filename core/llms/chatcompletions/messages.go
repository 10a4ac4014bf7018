package chatcompletions

import (
	"encoding/base64"

	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

func toMessages(instructions string, requestMessages []llms.RequestMessage) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if instructions != "" {
		messages = append(messages, openai.SystemMessage(instructions))
	}

	for _, msg := range requestMessages {
		switch msg.Role {
		case llms.MessageRoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))

		case llms.MessageRoleUser:
			messages = append(messages, userMessage(msg))

		case llms.MessageRoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)}
			}
			for _, toolCall := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: toolCall.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      toolCall.Name,
							Arguments: toolCall.Arguments,
						},
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case llms.MessageRoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return messages
}

func userMessage(msg llms.RequestMessage) openai.ChatCompletionMessageParamUnion {
	parts := []openai.ChatCompletionContentPartUnionParam{}
	for _, attachment := range msg.Attachments {
		if attachment.Kind != llms.AttachmentKindImage {
			continue
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + attachment.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(attachment.Data),
		}))
	}
	if len(parts) == 0 {
		return openai.UserMessage(msg.Content)
	}
	if msg.Content != "" {
		parts = append([]openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(msg.Content)}, parts...)
	}
	return openai.UserMessage(parts)
}

func toTools(schemas []llms.ToolSchema) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, schema := range schemas {
		fn := shared.FunctionDefinitionParam{
			Name:        schema.Name,
			Description: openai.String(schema.Description),
		}
		if len(schema.Parameters) > 0 {
			fn.Parameters = shared.FunctionParameters(schema.Parameters)
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(fn))
	}
	return tools
}
