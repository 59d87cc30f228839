package vecindex_test

import (
	"context"
	"testing"

	"github.com/starford/munin/internal/testutil"
	"github.com/starford/munin/internal/vecindex"
)

func TestUpsertAndQuery(t *testing.T) {
	idx := vecindex.NewInMemory(testutil.Embedder())
	ctx := context.Background()

	if err := idx.Upsert(ctx, "col", "id1", "alpha beta gamma", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "col", "id2", "completely different words", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := idx.Query(ctx, "col", "alpha beta gamma", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (limit capped at collection size)", len(hits))
	}
	if hits[0].ID != "id1" {
		t.Errorf("top hit = %q, want id1 (exact text match)", hits[0].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not ranked by score")
	}
	if hits[0].Metadata["k"] != "v" {
		t.Errorf("snapshot metadata = %v", hits[0].Metadata)
	}
}

func TestQueryMissingCollection(t *testing.T) {
	idx := vecindex.NewInMemory(testutil.Embedder())

	hits, err := idx.Query(context.Background(), "nope", "anything", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0", len(hits))
	}
}

func TestUpsertReplaces(t *testing.T) {
	idx := vecindex.NewInMemory(testutil.Embedder())
	ctx := context.Background()

	if err := idx.Upsert(ctx, "col", "id1", "first version", nil); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, "col", "id1", "second version", nil); err != nil {
		t.Fatal(err)
	}

	n, err := idx.Count(ctx, "col")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	content, err := idx.Content(ctx, "col", "id1")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if content != "second version" {
		t.Errorf("content = %q", content)
	}
}

func TestRefreshSnapshotKeepsEmbedding(t *testing.T) {
	idx := vecindex.NewInMemory(testutil.Embedder())
	ctx := context.Background()

	if err := idx.Upsert(ctx, "col", "id1", "stable text", map[string]any{"v": "1"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.RefreshSnapshot(ctx, "col", "id1", "stable text", map[string]any{"v": "2"}); err != nil {
		t.Fatalf("RefreshSnapshot: %v", err)
	}

	hits, err := idx.Query(ctx, "col", "stable text", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 {
		t.Fatal("document lost after snapshot refresh")
	}
	if hits[0].Metadata["v"] != "2" {
		t.Errorf("metadata = %v, want refreshed", hits[0].Metadata)
	}
}

func TestDeleteAndHas(t *testing.T) {
	idx := vecindex.NewInMemory(testutil.Embedder())
	ctx := context.Background()

	if err := idx.Upsert(ctx, "col", "id1", "to be removed", nil); err != nil {
		t.Fatal(err)
	}
	has, err := idx.Has(ctx, "col", "id1")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("Has = false after upsert")
	}

	if err := idx.Delete(ctx, "col", "id1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	has, err = idx.Has(ctx, "col", "id1")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("Has = true after delete")
	}

	// Deleting an absent entry is not an error.
	if err := idx.Delete(ctx, "col", "id1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if err := idx.Delete(ctx, "no-such-collection", "x"); err != nil {
		t.Errorf("delete in missing collection: %v", err)
	}
}

func TestCollections(t *testing.T) {
	idx := vecindex.NewInMemory(testutil.Embedder())
	ctx := context.Background()

	for _, c := range []string{"one", "two"} {
		if err := idx.Upsert(ctx, c, "id-"+c, "text", nil); err != nil {
			t.Fatal(err)
		}
	}
	cols, err := idx.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	if len(cols) != 2 {
		t.Errorf("collections = %v, want 2", cols)
	}
}

func TestPersistentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := vecindex.NewPersistent(dir, false, testutil.Embedder())
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}
	if err := idx.Upsert(ctx, "col", "id1", "durable text", nil); err != nil {
		t.Fatal(err)
	}

	// Reopen from the same path.
	reopened, err := vecindex.NewPersistent(dir, false, testutil.Embedder())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	has, err := reopened.Has(ctx, "col", "id1")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("document not persisted across reopen")
	}
}
