package capmodel

import "testing"

func TestRequiredInputsReadsSchemaRequiredArray(t *testing.T) {
	s := &ToolSchema{InputSchema: map[string]any{
		"required": []any{"path", "content"},
	}}
	req := s.RequiredInputs()
	if !req["path"] || !req["content"] {
		t.Fatalf("expected both required fields present, got %v", req)
	}
	if len(req) != 2 {
		t.Fatalf("expected exactly 2 required fields, got %d", len(req))
	}
}

func TestRequiredInputsNilSchemaIsEmptySet(t *testing.T) {
	var s *ToolSchema
	if got := s.RequiredInputs(); len(got) != 0 {
		t.Fatalf("expected empty set for nil schema, got %v", got)
	}
}

func TestInputOutputPropertyNames(t *testing.T) {
	s := &ToolSchema{
		InputSchema: map[string]any{
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
		},
		OutputSchema: map[string]any{
			"properties": map[string]any{"data": map[string]any{"type": "string"}},
		},
	}

	in := s.InputPropertyNames()
	if !in["path"] || len(in) != 1 {
		t.Fatalf("expected input property set {path}, got %v", in)
	}

	out := s.OutputPropertyNames()
	if !out["data"] || len(out) != 1 {
		t.Fatalf("expected output property set {data}, got %v", out)
	}
}
