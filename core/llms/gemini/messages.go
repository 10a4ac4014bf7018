package gemini

import (
	"encoding/json"

	"github.com/koscakluka/ema-chat/core/llms"
	"google.golang.org/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

func toContents(requestMessages []llms.RequestMessage) ([]*genai.Content, []*genai.Part) {
	contents := []*genai.Content{}
	system := []*genai.Part{}
	var responses *genai.Content

	flushResponses := func() {
		if responses != nil {
			contents = append(contents, responses)
			responses = nil
		}
	}

	for _, msg := range requestMessages {
		if msg.Role != llms.MessageRoleTool {
			flushResponses()
		}

		switch msg.Role {
		case llms.MessageRoleSystem:
			system = append(system, genai.NewPartFromText(msg.Content))

		case llms.MessageRoleUser:
			content := &genai.Content{Role: roleUser}
			if msg.Content != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(msg.Content))
			}
			for _, attachment := range msg.Attachments {
				if attachment.Kind != llms.AttachmentKindImage {
					continue
				}
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{Data: attachment.Data, MIMEType: attachment.MIMEType},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}

		case llms.MessageRoleAssistant:
			content := &genai.Content{Role: roleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(msg.Content))
			}
			for _, toolCall := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(toolCall.Arguments), &args); err != nil {
					logger.Warn("tool call arguments are not a JSON object", "tool", toolCall.Name, "error", err)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: toolCall.ID, Name: toolCall.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}

		case llms.MessageRoleTool:
			if responses == nil {
				responses = &genai.Content{Role: roleUser}
			}
			key := "output"
			if msg.IsError {
				key = "error"
			}
			responses.Parts = append(responses.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: map[string]any{key: msg.Content},
				},
			})
		}
	}
	flushResponses()

	return contents, system
}

func toFunctionDeclarations(schemas []llms.ToolSchema) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, schema := range schemas {
		declaration := &genai.FunctionDeclaration{
			Name:        schema.Name,
			Description: schema.Description,
		}
		if len(schema.Parameters) > 0 {
			declaration.ParametersJsonSchema = schema.Parameters
		}
		declarations = append(declarations, declaration)
	}
	return declarations
}
