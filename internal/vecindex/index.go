// Package vecindex provides the vector similarity index backed by
// chromem-go. The index owns embeddings and ranked search only; it is
// never the source of truth for document existence, and its metadata
// payload is a denormalized snapshot with no freshness guarantee.
package vecindex

import "context"

// Hit is one ranked similarity match.
type Hit struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Index is the interface the coordinator consumes. Consumers should
// depend on this interface rather than the concrete *Chromem type to
// facilitate testing with fakes.
type Index interface {
	// Upsert stores (or replaces) the embedding and snapshot for one
	// document in its collection.
	Upsert(ctx context.Context, collection, id, content string, metadata map[string]any) error
	// RefreshSnapshot replaces the metadata snapshot for id, reusing
	// the stored embedding when the content is unchanged. Falls back
	// to a full Upsert when no entry exists.
	RefreshSnapshot(ctx context.Context, collection, id, content string, metadata map[string]any) error
	// Delete removes the entry for id. Deleting an absent entry is not
	// an error.
	Delete(ctx context.Context, collection, id string) error
	// Query embeds text and returns up to limit matches, descending by
	// similarity score.
	Query(ctx context.Context, collection, text string, limit int) ([]Hit, error)
	// Has reports whether an entry for id exists in the collection.
	Has(ctx context.Context, collection, id string) (bool, error)
	// Content returns the stored content for id, or "" if absent.
	Content(ctx context.Context, collection, id string) (string, error)
	// Count returns the number of entries in the collection.
	Count(ctx context.Context, collection string) (int, error)
	// Collections returns all known collection names.
	Collections(ctx context.Context) ([]string, error)
}
