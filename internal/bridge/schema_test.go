package bridge

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecFromTool(t *testing.T) {
	spec, err := specFromTool(&mcp.Tool{
		Name:        "send_sms",
		Description: "sends a text message",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"to":   {Type: "string", Description: "recipient number"},
				"body": {Type: "string", Description: "message body"},
				"tag":  {Type: "string"},
			},
			Required: []string{"to", "body"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "send_sms", spec.Name)
	require.Len(t, spec.Params, 3)
	assert.Equal(t, Param{Name: "body", Description: "message body", Required: true}, spec.Params[0])
	assert.Equal(t, Param{Name: "tag", Required: false}, spec.Params[1])
	assert.Equal(t, Param{Name: "to", Description: "recipient number", Required: true}, spec.Params[2])
}

func TestSpecFromToolUntypedSchema(t *testing.T) {
	// The SDK delivers schemas as untyped JSON values after transport.
	spec, err := specFromTool(&mcp.Tool{
		Name: "send_sms",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to": map[string]any{"type": "string", "description": "recipient number"},
			},
			"required": []any{"to"},
		},
	})
	require.NoError(t, err)
	require.Len(t, spec.Params, 1)
	assert.Equal(t, Param{Name: "to", Description: "recipient number", Required: true}, spec.Params[0])
}

func TestSpecFromToolMalformedSchema(t *testing.T) {
	_, err := specFromTool(&mcp.Tool{
		Name:        "weird",
		InputSchema: map[string]any{"properties": "not-an-object"},
	})
	require.ErrorIs(t, err, ErrDiscovery)
}

func TestSpecFromToolNilSchema(t *testing.T) {
	spec, err := specFromTool(&mcp.Tool{Name: "ping", Description: "no inputs"})
	require.NoError(t, err)
	assert.Empty(t, spec.Params)
	assert.NoError(t, spec.ValidateArguments(map[string]string{}))
}

func TestSpecFromToolRejectsNonObjectSchema(t *testing.T) {
	_, err := specFromTool(&mcp.Tool{
		Name:        "weird",
		InputSchema: &jsonschema.Schema{Type: "array"},
	})
	require.ErrorIs(t, err, ErrDiscovery)
}

func TestValidateArguments(t *testing.T) {
	spec := ToolSpec{
		Name: "echo",
		Params: []Param{
			{Name: "text", Required: true},
			{Name: "suffix"},
		},
	}

	tests := []struct {
		name    string
		args    map[string]string
		wantErr bool
	}{
		{name: "required only", args: map[string]string{"text": "hi"}},
		{name: "all declared", args: map[string]string{"text": "hi", "suffix": "!"}},
		{name: "missing required", args: map[string]string{"suffix": "!"}, wantErr: true},
		{name: "undeclared key", args: map[string]string{"text": "hi", "loud": "yes"}, wantErr: true},
		{name: "empty value counts as present", args: map[string]string{"text": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := spec.ValidateArguments(tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestModelTool(t *testing.T) {
	spec := ToolSpec{
		Name:        "generate_image",
		Description: "creates an image",
		Params: []Param{
			{Name: "prompt", Description: "what to draw", Required: true},
			{Name: "style"},
		},
	}

	tool := spec.ModelTool()
	assert.Equal(t, "function", tool.Type)
	require.NotNil(t, tool.Function)
	assert.Equal(t, "generate_image", tool.Function.Name)

	params, ok := tool.Function.Parameters.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []string{"prompt"}, params["required"])

	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "prompt")
	assert.Contains(t, props, "style")
}
