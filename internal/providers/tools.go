package providers

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ToolCallIssue describes why one tool call does not match its definition.
type ToolCallIssue struct {
	CallID string   `json:"callId"`
	Name   string   `json:"name"`
	Errors []string `json:"errors"`
}

// ValidateToolCalls checks each call against the input schema of the tool
// with the same name. Calls to unknown tools are reported; tools without a
// schema accept any arguments. The error return is reserved for schemas
// that fail to compile.
func ValidateToolCalls(defs []ToolDefinition, calls []ToolCall) ([]ToolCallIssue, error) {
	byName := make(map[string]ToolDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	var issues []ToolCallIssue
	for _, call := range calls {
		def, ok := byName[call.Name]
		if !ok {
			issues = append(issues, ToolCallIssue{
				CallID: call.ID,
				Name:   call.Name,
				Errors: []string{fmt.Sprintf("unknown tool %q", call.Name)},
			})
			continue
		}
		if def.InputSchema == nil {
			continue
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compiling schema for tool %q: %w", def.Name, err)
		}

		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		result, err := schema.Validate(gojsonschema.NewGoLoader(args))
		if err != nil {
			return nil, fmt.Errorf("validating arguments for tool %q: %w", def.Name, err)
		}
		if result.Valid() {
			continue
		}

		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		issues = append(issues, ToolCallIssue{CallID: call.ID, Name: call.Name, Errors: errs})
	}
	return issues, nil
}
