// Package store implements the vector store adapter (C4): a pluggable
// collection supporting upsert, get-by-id, filtered get, similarity
// query, metadata-only update, and count. Backend is the low-level
// per-vendor seam (grounded on the teacher's VectorStore interface,
// extended with the additional operations the spec requires); Adapter
// is the high-level seam every other component talks to, composing a
// Backend with the pluggable Embedder.
package store

import "context"

// Record is one stored row: its ID, metadata, and (when requested)
// similarity score against a query vector.
type Record struct {
	ID       string
	Metadata map[string]string
	Score    float64 // cosine similarity; only meaningful from Query.
}

// Backend abstracts one vendor's vector collection. Every method is
// atomic at the row level, matching spec §4.4's invariant; a multi-row
// call that fails partway can leave its earlier rows written.
type Backend interface {
	// Upsert inserts or replaces rows by ID. vectors[i] is the embedding
	// for ids[i]; metadatas[i] its metadata.
	Upsert(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]string) error

	// Get returns the stored rows for the given IDs, omitting any ID
	// that is not present.
	Get(ctx context.Context, ids []string) ([]Record, error)

	// GetWhere returns every row whose metadata matches filter (exact
	// equality on each key). May be large; callers iterate via limit.
	GetWhere(ctx context.Context, filter map[string]string, limit int) ([]Record, error)

	// SimilaritySearch returns the k nearest rows to vector by cosine
	// similarity, restricted to rows matching filter.
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Record, error)

	// Update replaces only the metadata of existing rows; it never
	// re-embeds and never changes the stored vector.
	Update(ctx context.Context, ids []string, metadatas []map[string]string) error

	// Count returns the total number of rows in the collection.
	Count(ctx context.Context) (int, error)

	Close() error
}
