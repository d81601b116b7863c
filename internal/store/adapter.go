package store

import (
	"context"
	"fmt"

	"chronicle/internal/embedclient"
	"chronicle/internal/entry"
)

// textMetaKey is the reserved metadata key the Adapter uses to round-trip
// an entry's raw text through the Backend. entry.ToMetadata deliberately
// omits text (ids/texts/metadatas are separate in the C4 contract), so
// the Adapter layer — not the C1 codec — is responsible for attaching
// and stripping it.
const textMetaKey = "_text"

// Adapter is the high-level vector store adapter (C4) every other
// component talks to. It composes a Backend with the pluggable
// Embedder, working in terms of entry.ConversationEntry rather than raw
// IDs/vectors/metadata maps.
type Adapter struct {
	backend  Backend
	embedder embedclient.Embedder
}

// New builds an Adapter over backend, embedding text through embedder.
func New(backend Backend, embedder embedclient.Embedder) *Adapter {
	return &Adapter{backend: backend, embedder: embedder}
}

// Upsert embeds each entry's text and writes it to the backend. IDs are
// taken from entry.ID — callers must never re-derive IDs from text.
func (a *Adapter) Upsert(ctx context.Context, entries []entry.ConversationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	metadatas := make([]map[string]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		vec, err := a.embedder.Embed(e.Text)
		if err != nil {
			return fmt.Errorf("embed entry %s: %w", e.ID, err)
		}
		vectors[i] = vec
		md := e.ToMetadata()
		md[textMetaKey] = e.Text
		metadatas[i] = md
	}
	return a.backend.Upsert(ctx, ids, vectors, metadatas)
}

// Get returns the entries for ids, reconstructed from stored metadata.
// IDs not present in the store are simply absent from the result.
func (a *Adapter) Get(ctx context.Context, ids []string) ([]entry.ConversationEntry, error) {
	recs, err := a.backend.Get(ctx, ids)
	if err != nil {
		return nil, err
	}
	return recordsToEntries(recs), nil
}

// GetWhere returns every entry whose metadata matches filter, up to
// limit (0 = backend default). IDs returned here are ground truth for
// any subsequent Update call — callers must not re-derive them.
func (a *Adapter) GetWhere(ctx context.Context, filter map[string]string, limit int) ([]entry.ConversationEntry, error) {
	recs, err := a.backend.GetWhere(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	return recordsToEntries(recs), nil
}

// QueryResult pairs a reconstructed entry with its similarity score.
type QueryResult struct {
	Entry entry.ConversationEntry
	Score float64
}

// Query embeds text and returns the k nearest entries under filter.
func (a *Adapter) Query(ctx context.Context, text string, k int, filter map[string]string) ([]QueryResult, error) {
	vec, err := a.embedder.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	recs, err := a.backend.SimilaritySearch(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]QueryResult, len(recs))
	for i, r := range recs {
		out[i] = QueryResult{Entry: entryFromRecord(r), Score: r.Score}
	}
	return out, nil
}

// Update writes only the metadata of the given entries, without
// re-embedding, matching spec §4.4's metadata-only update contract.
func (a *Adapter) Update(ctx context.Context, entries []entry.ConversationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	metadatas := make([]map[string]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		md := e.ToMetadata()
		md[textMetaKey] = e.Text
		metadatas[i] = md
	}
	return a.backend.Update(ctx, ids, metadatas)
}

// Count returns the total number of stored entries.
func (a *Adapter) Count(ctx context.Context) (int, error) {
	return a.backend.Count(ctx)
}

// Close releases the underlying backend's resources.
func (a *Adapter) Close() error { return a.backend.Close() }

func recordsToEntries(recs []Record) []entry.ConversationEntry {
	out := make([]entry.ConversationEntry, len(recs))
	for i, r := range recs {
		out[i] = entryFromRecord(r)
	}
	return out
}

// entryFromRecord splits the reserved text key back out of a record's
// metadata before handing the rest to the C1 codec, so FromMetadata
// never sees — and never preserves into Extra — the Adapter's own
// bookkeeping key.
func entryFromRecord(r Record) entry.ConversationEntry {
	text := r.Metadata[textMetaKey]
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		if k == textMetaKey {
			continue
		}
		meta[k] = v
	}
	return entry.FromMetadata(r.ID, text, meta)
}
