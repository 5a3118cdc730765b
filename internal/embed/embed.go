// Package embed declares the collaborator interface the Capability Store
// uses to turn a capability's description/code into an intent embedding.
// No concrete embedding model ships in this module; callers wire in
// whatever provider (local model, hosted API) fits their deployment, the
// same collaborator-interface shape the teacher uses for its LLM provider
// abstraction in internal/chief.
package embed

import "context"

// Embedder turns free text into a fixed-dimension intent embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Noop is a zero-dependency Embedder that always returns an empty vector,
// used when a capability is saved without semantic search support (intent
// matching then falls back to structural/context matching only).
type Noop struct{}

// Embed implements Embedder.
func (Noop) Embed(context.Context, string) ([]float32, error) {
	return nil, nil
}
