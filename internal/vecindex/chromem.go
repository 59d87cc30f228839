package vecindex

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// Chromem implements Index using the chromem-go embedded vector
// database with on-disk persistence.
type Chromem struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
}

// NewPersistent opens (or creates) a persistent chromem database at
// path. The embedding func is attached to every collection.
func NewPersistent(path string, compress bool, embed chromem.EmbeddingFunc) (*Chromem, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("vecindex: create dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("vecindex: open db: %w", err)
	}
	return &Chromem{db: db, embed: embed}, nil
}

// NewInMemory creates a non-persistent index, used in tests.
func NewInMemory(embed chromem.EmbeddingFunc) *Chromem {
	return &Chromem{db: chromem.NewDB(), embed: embed}
}

func (c *Chromem) collection(name string) (*chromem.Collection, error) {
	col, err := c.db.GetOrCreateCollection(name, nil, c.embed)
	if err != nil {
		return nil, fmt.Errorf("vecindex: collection %s: %w", name, err)
	}
	return col, nil
}

// Upsert stores the embedding and denormalized snapshot for one
// document. An existing entry with the same id is replaced.
func (c *Chromem) Upsert(ctx context.Context, collection, id, content string, metadata map[string]any) error {
	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: stringifyMetadata(metadata),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("vecindex: upsert %s: %w", id, err)
	}
	return nil
}

// RefreshSnapshot replaces the metadata snapshot for id. When an entry
// exists its stored embedding is reused so unchanged content is not
// re-embedded; otherwise this degrades to a full Upsert.
func (c *Chromem) RefreshSnapshot(ctx context.Context, collection, id, content string, metadata map[string]any) error {
	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: stringifyMetadata(metadata),
	}
	if existing, getErr := col.GetByID(ctx, id); getErr == nil {
		doc.Embedding = existing.Embedding
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("vecindex: refresh %s: %w", id, err)
	}
	return nil
}

// Delete removes the entry for id. Missing collections or ids report
// "already absent" (nil).
func (c *Chromem) Delete(ctx context.Context, collection, id string) error {
	col := c.db.GetCollection(collection, c.embed)
	if col == nil {
		return nil
	}
	if _, err := col.GetByID(ctx, id); err != nil {
		return nil // already absent
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("vecindex: delete %s: %w", id, err)
	}
	return nil
}

// Query embeds text and returns ranked matches. chromem requires
// nResults <= document count, so limit is capped; empty or missing
// collections yield no hits.
func (c *Chromem) Query(ctx context.Context, collection, text string, limit int) ([]Hit, error) {
	col := c.db.GetCollection(collection, c.embed)
	if col == nil {
		return []Hit{}, nil
	}
	count := col.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	if limit > count {
		limit = count
	}
	results, err := col.Query(ctx, text, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vecindex: query %s: %w", collection, err)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: anyMetadata(r.Metadata),
		}
	}
	return hits, nil
}

// Has reports whether an entry exists for id.
func (c *Chromem) Has(ctx context.Context, collection, id string) (bool, error) {
	col := c.db.GetCollection(collection, c.embed)
	if col == nil {
		return false, nil
	}
	if _, err := col.GetByID(ctx, id); err != nil {
		return false, nil
	}
	return true, nil
}

// Content returns the stored content for id, or "" if absent.
func (c *Chromem) Content(ctx context.Context, collection, id string) (string, error) {
	col := c.db.GetCollection(collection, c.embed)
	if col == nil {
		return "", nil
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return "", nil
	}
	return doc.Content, nil
}

// Count returns the number of entries in the collection.
func (c *Chromem) Count(_ context.Context, collection string) (int, error) {
	col := c.db.GetCollection(collection, c.embed)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Collections returns all known collection names.
func (c *Chromem) Collections(_ context.Context) ([]string, error) {
	cols := c.db.ListCollections()
	out := make([]string, 0, len(cols))
	for name := range cols {
		out = append(out, name)
	}
	return out, nil
}

// stringifyMetadata flattens typed metadata into the string map chromem
// stores as the denormalized snapshot.
func stringifyMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func anyMetadata(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Index = (*Chromem)(nil)
