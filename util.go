package toolagent

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"

	"github.com/feiskyer/toolagent/tools"
)

// InputArgumentName is the single argument every tool accepts.
const InputArgumentName = "input"

// ToolInput is the argument object advertised for every tool.
type ToolInput struct {
	Input string `json:"input" jsonschema_description:"The text input for the tool."`
}

// ToolParameters returns the JSON schema of a tool's arguments.
func ToolParameters(t tools.Tool) openai.FunctionParameters {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := r.Reflect(&ToolInput{})
	schema.Version = ""

	if d, ok := t.(tools.InputDescriber); ok && d.InputDescription() != "" {
		if prop, ok := schema.Properties.Get(InputArgumentName); ok {
			prop.Description = d.InputDescription()
		}
	}

	params := openai.FunctionParameters{}
	data, err := json.Marshal(schema)
	if err == nil {
		err = json.Unmarshal(data, &params)
	}
	if err != nil {
		// the schema is built from a fixed struct; fall back to the literal form
		return openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				InputArgumentName: map[string]interface{}{"type": "string"},
			},
			"required": []string{InputArgumentName},
		}
	}
	return params
}

// ToolToParam converts a tool to the OpenAI function tool format.
func ToolToParam(t tools.Tool) openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  ToolParameters(t),
		},
	}
}

// ParseToolInput extracts the tool input from the raw arguments sent by the
// model. Besides the advertised {"input": ...} object it accepts an object
// with any single key, a bare JSON value, or plain text.
func ParseToolInput(arguments string) (string, error) {
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" {
		return "", nil
	}

	var raw interface{}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return arguments, nil
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return stringify(raw), nil
	}
	if v, ok := obj[InputArgumentName]; ok {
		return stringify(v), nil
	}
	switch len(obj) {
	case 0:
		return "", nil
	case 1:
		for _, v := range obj {
			return stringify(v), nil
		}
	}
	return "", errors.Newf("expected a single %q argument, got %d arguments", InputArgumentName, len(obj))
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
