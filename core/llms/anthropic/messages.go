package anthropic

import (
	"encoding/base64"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/koscakluka/ema-chat/core/llms"
)

// toMessages converts request messages to the Messages API shape. System
// messages are folded into the system prompt and consecutive tool results are
// grouped into a single user turn as the API requires.
func toMessages(requestMessages []llms.RequestMessage) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	messages := []sdk.MessageParam{}
	system := []sdk.TextBlockParam{}
	var toolResults []sdk.ContentBlockParamUnion

	flushToolResults := func() {
		if len(toolResults) > 0 {
			messages = append(messages, sdk.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, msg := range requestMessages {
		if msg.Role != llms.MessageRoleTool {
			flushToolResults()
		}

		switch msg.Role {
		case llms.MessageRoleSystem:
			system = append(system, sdk.TextBlockParam{Text: msg.Content})

		case llms.MessageRoleUser:
			blocks := []sdk.ContentBlockParamUnion{}
			for _, attachment := range msg.Attachments {
				if attachment.Kind == llms.AttachmentKindImage {
					blocks = append(blocks, sdk.NewImageBlockBase64(attachment.MIMEType, base64.StdEncoding.EncodeToString(attachment.Data)))
				}
			}
			if msg.Content != "" || len(blocks) == 0 {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			messages = append(messages, sdk.NewUserMessage(blocks...))

		case llms.MessageRoleAssistant:
			blocks := []sdk.ContentBlockParamUnion{}
			if msg.ReasoningSignature != "" && msg.Reasoning != "" {
				blocks = append(blocks, sdk.NewThinkingBlock(msg.ReasoningSignature, msg.Reasoning))
			}
			if msg.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, toolCall := range msg.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(toolCall.ID, toolInput(toolCall.Arguments), toolCall.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, sdk.NewAssistantMessage(blocks...))

		case llms.MessageRoleTool:
			toolResults = append(toolResults, sdk.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		}
	}
	flushToolResults()

	return messages, system
}

// unsignedToolTurn reports whether the last assistant message requested tools
// without carrying signed reasoning to replay.
func unsignedToolTurn(requestMessages []llms.RequestMessage) bool {
	for i := len(requestMessages) - 1; i >= 0; i-- {
		msg := requestMessages[i]
		if msg.Role != llms.MessageRoleAssistant {
			continue
		}
		return len(msg.ToolCalls) > 0 && (msg.ReasoningSignature == "" || msg.Reasoning == "")
	}
	return false
}

// toolInput passes the argument blob through untouched when it is valid JSON.
func toolInput(arguments string) any {
	if arguments == "" || !json.Valid([]byte(arguments)) {
		return map[string]any{}
	}
	return json.RawMessage(arguments)
}

func toTools(schemas []llms.ToolSchema) []sdk.ToolUnionParam {
	tools := make([]sdk.ToolUnionParam, 0, len(schemas))
	for _, schema := range schemas {
		tools = append(tools, sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
			Name:        schema.Name,
			Description: sdk.String(schema.Description),
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: schema.Properties(),
				Required:   schema.Required(),
			},
		}})
	}
	return tools
}
