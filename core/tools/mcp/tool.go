package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/tools"
	"github.com/tidwall/gjson"
)

const maxToolNameLength = 64

type remoteTool struct {
	client     *Client
	remoteName string
	schema     llms.ToolSchema
}

// NewTool exposes a remote tool under "<server>_<tool>".
func NewTool(client *Client, info ToolInfo) tools.Tool {
	parameters := map[string]any{}
	if len(info.InputSchema) > 0 {
		if err := json.Unmarshal(info.InputSchema, &parameters); err != nil {
			logger.Warn("ignoring malformed input schema", "server", client.Name(), "tool", info.Name, "error", err)
			parameters = map[string]any{}
		}
	}
	if _, ok := parameters["type"]; !ok {
		parameters["type"] = "object"
	}
	if _, ok := parameters["properties"]; !ok {
		parameters["properties"] = map[string]any{}
	}

	return &remoteTool{
		client:     client,
		remoteName: info.Name,
		schema: llms.ToolSchema{
			Name:        ToolName(client.Name(), info.Name),
			Description: info.Description,
			Parameters:  parameters,
		},
	}
}

func (t *remoteTool) Schema() llms.ToolSchema { return t.schema }

func (t *remoteTool) Execute(ctx context.Context, arguments string) (tools.Output, error) {
	result, err := t.client.CallTool(ctx, t.remoteName, arguments)
	if err != nil {
		return tools.Output{}, err
	}
	return toOutput(result), nil
}

func toOutput(result gjson.Result) tools.Output {
	var (
		output tools.Output
		texts  []string
	)
	result.Get("content").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			texts = append(texts, item.Get("text").String())
		case "resource":
			if text := item.Get("resource.text"); text.Exists() {
				texts = append(texts, text.String())
			}
		case "image", "audio":
			data, err := base64.StdEncoding.DecodeString(item.Get("data").String())
			if err != nil {
				logger.Warn("dropping undecodable mcp content", "type", item.Get("type").String(), "error", err)
				return true
			}
			mimeType := item.Get("mimeType").String()
			if item.Get("type").String() == "image" {
				output.Images = append(output.Images, llms.Attachment{Kind: llms.AttachmentKindImage, MIMEType: mimeType, Data: data})
			} else {
				output.Audio = append(output.Audio, tools.AudioOutput{MIMEType: mimeType, Data: data})
			}
		}
		return true
	})
	if len(texts) == 0 {
		if structured := result.Get("structuredContent"); structured.Exists() {
			texts = append(texts, structured.Raw)
		}
	}
	output.Text = strings.Join(texts, "\n")
	return output
}

// ToolName builds the registry name of a remote tool. Characters providers
// reject are replaced and the result is capped at 64 characters.
func ToolName(server, tool string) string {
	name := sanitize(server) + "_" + sanitize(tool)
	if len(name) > maxToolNameLength {
		name = name[:maxToolNameLength]
	}
	return name
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}
