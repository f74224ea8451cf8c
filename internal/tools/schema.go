package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// inputSchema derives the JSON schema of a tool input struct as the plain
// map carried by llm.ToolDefinition.
func inputSchema[T any]() map[string]any {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	var zero T
	s := r.Reflect(&zero)

	props := map[string]any{}
	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			props[pair.Key] = propertySchema(pair.Value)
		}
	}
	required := append([]string{}, s.Required...)

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func propertySchema(s *jsonschema.Schema) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": s.Type}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": s.Type}
	}
	return m
}
