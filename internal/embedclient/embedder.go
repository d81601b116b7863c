// Package embedclient provides the pluggable text->vector encoder spec
// §1 treats as an external collaborator with a contract only: given
// text, return a fixed-dimensionality vector. Two implementations are
// provided: a deterministic hash-based embedder for tests and a thin
// HTTP client for a real embedding service.
package embedclient

import "context"

// Embedder converts text to embedding vectors.
type Embedder interface {
	// Embed returns a single vector for text.
	Embed(text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the embedding dimensionality.
	Dimension() int
	// Ping checks whether the embedding backend is reachable.
	Ping(ctx context.Context) error
}
