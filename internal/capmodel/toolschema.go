package capmodel

// ToolSchema describes a real tool's input/output JSON Schema, as cached by
// the Edge Builder's provides-edge inference and the store's tool_schema
// table (spec.md 6).
type ToolSchema struct {
	ToolID       string         `json:"toolId"`
	InputSchema  map[string]any `json:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

// RequiredInputs returns the "required" array of InputSchema as a set, or an
// empty set if absent.
func (s *ToolSchema) RequiredInputs() map[string]bool {
	out := map[string]bool{}
	if s == nil || s.InputSchema == nil {
		return out
	}
	req, _ := s.InputSchema["required"].([]any)
	for _, r := range req {
		if name, ok := r.(string); ok {
			out[name] = true
		}
	}
	return out
}

// propertyNames returns the key set of a schema's "properties" object.
func propertyNames(schema map[string]any) map[string]bool {
	out := map[string]bool{}
	if schema == nil {
		return out
	}
	props, _ := schema["properties"].(map[string]any)
	for k := range props {
		out[k] = true
	}
	return out
}

// InputPropertyNames returns the property-name set of InputSchema.
func (s *ToolSchema) InputPropertyNames() map[string]bool {
	if s == nil {
		return map[string]bool{}
	}
	return propertyNames(s.InputSchema)
}

// OutputPropertyNames returns the property-name set of OutputSchema.
func (s *ToolSchema) OutputPropertyNames() map[string]bool {
	if s == nil {
		return map[string]bool{}
	}
	return propertyNames(s.OutputSchema)
}
