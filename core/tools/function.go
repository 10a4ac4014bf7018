package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-chat/core/llms"
)

type functionTool[P any] struct {
	schema llms.ToolSchema
	fn     func(context.Context, P) (Output, error)
}

// NewFunctionTool wraps fn as a tool. The parameter schema is reflected from
// P, so field tags (`json`, `jsonschema`) describe the arguments.
func NewFunctionTool[P any](name, description string, fn func(ctx context.Context, parameters P) (string, error)) Tool {
	return NewRichFunctionTool(name, description, func(ctx context.Context, parameters P) (Output, error) {
		text, err := fn(ctx, parameters)
		return Output{Text: text}, err
	})
}

// NewRichFunctionTool is NewFunctionTool for functions that return
// attachments or sources along with their text.
func NewRichFunctionTool[P any](name, description string, fn func(ctx context.Context, parameters P) (Output, error)) Tool {
	return &functionTool[P]{
		schema: llms.ToolSchema{
			Name:        name,
			Description: description,
			Parameters:  reflectParameters[P](),
		},
		fn: fn,
	}
}

func (t *functionTool[P]) Schema() llms.ToolSchema { return t.schema }

func (t *functionTool[P]) Execute(ctx context.Context, arguments string) (Output, error) {
	var parameters P
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
			return Output{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
		}
	}
	return t.fn(ctx, parameters)
}

func reflectParameters[P any]() map[string]any {
	typ := reflect.TypeFor[P]()
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct || typ.NumField() == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	// Expansion looks the root up by type name, so unnamed structs are
	// reflected inline instead.
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: typ.Name() != "", Anonymous: typ.Name() == ""}
	schema := reflector.ReflectFromType(typ)

	raw, err := json.Marshal(schema)
	if err != nil {
		logger.Warn("failed to marshal tool schema", "type", typ.String(), "error", err)
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var parameters map[string]any
	if err := json.Unmarshal(raw, &parameters); err != nil {
		logger.Warn("failed to decode tool schema", "type", typ.String(), "error", err)
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(parameters, "$schema")
	delete(parameters, "$id")
	if _, ok := parameters["properties"]; !ok {
		parameters["properties"] = map[string]any{}
	}
	return parameters
}
