package bridge

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tmc/langchaingo/llms"
)

// Param is one declared input parameter of a bridged tool. All parameters
// are string-valued on the wire.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// ToolSpec describes a tool discovered from the tool server: its identity
// plus the flat parameter schema used both for local argument validation
// and for binding the tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// inputSchema is the subset of a tool's JSON input schema the bridge
// understands: a flat object of string parameters.
type inputSchema struct {
	Type       string   `json:"type"`
	Required   []string `json:"required"`
	Properties map[string]struct {
		Description string `json:"description"`
	} `json:"properties"`
}

// specFromTool converts a discovered MCP tool into a ToolSpec. The SDK
// carries the input schema as an untyped value, so it is decoded through
// its wire form. Tools whose input schema is not a flat object cannot be
// validated locally and are a discovery error.
func specFromTool(t *mcp.Tool) (ToolSpec, error) {
	spec := ToolSpec{Name: t.Name, Description: t.Description}

	if t.InputSchema == nil {
		return spec, nil
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return ToolSpec{}, fmt.Errorf("%w: tool %q input schema: %w",
			ErrDiscovery, t.Name, err)
	}
	var s inputSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return ToolSpec{}, fmt.Errorf("%w: tool %q input schema: %w",
			ErrDiscovery, t.Name, err)
	}
	if s.Type != "" && s.Type != "object" {
		return ToolSpec{}, fmt.Errorf("%w: tool %q has non-object input schema %q",
			ErrDiscovery, t.Name, s.Type)
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	for name, prop := range s.Properties {
		spec.Params = append(spec.Params, Param{
			Name:        name,
			Description: prop.Description,
			Required:    required[name],
		})
	}
	sort.Slice(spec.Params, func(i, j int) bool {
		return spec.Params[i].Name < spec.Params[j].Name
	})

	return spec, nil
}

// ValidateArguments checks an argument map against the declared parameters.
// Every required parameter must be present and every provided key must be
// declared.
func (s ToolSpec) ValidateArguments(args map[string]string) error {
	declared := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		declared[p.Name] = true
		if p.Required {
			if _, ok := args[p.Name]; !ok {
				return fmt.Errorf("%w: tool %q missing required argument %q",
					ErrArgument, s.Name, p.Name)
			}
		}
	}
	for name := range args {
		if !declared[name] {
			return fmt.Errorf("%w: tool %q does not accept argument %q",
				ErrArgument, s.Name, name)
		}
	}
	return nil
}

// ModelTool renders the tool description as a function tool for model binding.
func (s ToolSpec) ModelTool() llms.Tool {
	props := make(map[string]any, len(s.Params))
	var required []string
	for _, p := range s.Params {
		prop := map[string]any{"type": "string"}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		},
	}
}
