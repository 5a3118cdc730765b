package embed

import "testing"

func TestNoopEmbedReturnsEmptyVector(t *testing.T) {
	var e Embedder = Noop{}
	vec, err := e.Embed(nil, "list files then summarize")
	if err != nil {
		t.Fatalf("Noop.Embed returned error: %v", err)
	}
	if vec != nil {
		t.Fatalf("expected nil vector from Noop, got %v", vec)
	}
}
