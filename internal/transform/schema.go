package transform

// synthesizeSchema implements spec.md 4.3 "Parameter schema synthesis": each
// extracted literal becomes a JSON Schema property typed by its runtime
// type, with an `examples` entry (and `default` for booleans); every lifted
// name is `required`.
func synthesizeSchema(extracted map[string]any) map[string]any {
	properties := map[string]any{}
	required := make([]any, 0, len(extracted))

	for name, v := range extracted {
		properties[name] = schemaProperty(v)
		required = append(required, name)
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func schemaProperty(v any) map[string]any {
	switch val := v.(type) {
	case bool:
		return map[string]any{"type": "boolean", "examples": []any{val}, "default": val}
	case string:
		return map[string]any{"type": "string", "examples": []any{val}}
	case int64:
		return map[string]any{"type": "integer", "examples": []any{val}}
	case float64:
		if val == float64(int64(val)) {
			return map[string]any{"type": "integer", "examples": []any{val}}
		}
		return map[string]any{"type": "number", "examples": []any{val}}
	case []any:
		return map[string]any{"type": "array", "items": itemSchema(val), "examples": []any{val}}
	case map[string]any:
		return map[string]any{"type": "object", "examples": []any{val}}
	case nil:
		return map[string]any{"type": "null"}
	default:
		return map[string]any{"type": "string", "examples": []any{val}}
	}
}

// itemSchema infers the array's item type from its first element, falling
// back to an untyped schema for an empty array. Later elements are not
// checked, so a mixed-type array is typed by its first element.
func itemSchema(arr []any) map[string]any {
	if len(arr) == 0 {
		return map[string]any{}
	}
	prop := schemaProperty(arr[0])
	delete(prop, "examples")
	delete(prop, "default")
	return prop
}
