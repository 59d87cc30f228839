package metastore_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/testutil"
)

func testDoc(id, collection string) *models.Document {
	now := time.Now().UTC()
	return &models.Document{
		ID:         id,
		Collection: collection,
		Content:    "content of " + id,
		Metadata:   map[string]any{"source": "test"},
		Status:     models.StatusActive,
		Checksum:   "cs-" + id,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestInsertAndGet(t *testing.T) {
	store := testutil.TestMetaStore(t)

	doc := testDoc("doc1", "default")
	if err := store.Insert(doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Get("doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != doc.Content {
		t.Errorf("content = %q", got.Content)
	}
	if got.Metadata["source"] != "test" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.Status != models.StatusActive {
		t.Errorf("status = %q", got.Status)
	}
}

func TestInsertDuplicate(t *testing.T) {
	store := testutil.TestMetaStore(t)

	if err := store.Insert(testDoc("doc1", "default")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.Insert(testDoc("doc1", "default"))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate insert: err = %v, want ErrAlreadyExists", err)
	}
}

func TestUpdatePreservesCreatedAtAndCollection(t *testing.T) {
	store := testutil.TestMetaStore(t)

	doc := testDoc("doc1", "original")
	if err := store.Insert(doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	changed := *doc
	changed.Collection = "attempted_move"
	changed.Content = "new content"
	changed.UpdatedAt = doc.UpdatedAt.Add(time.Minute)
	if err := store.Update(&changed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get("doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Collection != "original" {
		t.Errorf("collection = %q, want original", got.Collection)
	}
	if got.Content != "new content" {
		t.Errorf("content = %q", got.Content)
	}
	if !got.CreatedAt.Equal(doc.CreatedAt) {
		t.Errorf("created_at changed: %v != %v", got.CreatedAt, doc.CreatedAt)
	}
}

func TestUpdateMissing(t *testing.T) {
	store := testutil.TestMetaStore(t)
	err := store.Update(testDoc("ghost", "default"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	store := testutil.TestMetaStore(t)
	if err := store.Delete("never-existed"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestListOrderAndLimit(t *testing.T) {
	store := testutil.TestMetaStore(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		doc := testDoc(fmt.Sprintf("doc%d", i), "default")
		doc.UpdatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Insert(doc); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	docs, total, err := store.List("default", 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(docs) != 3 {
		t.Fatalf("len = %d, want 3", len(docs))
	}
	if docs[0].ID != "doc4" {
		t.Errorf("first = %q, want newest (doc4)", docs[0].ID)
	}
}

func TestListScopedToCollection(t *testing.T) {
	store := testutil.TestMetaStore(t)

	if err := store.Insert(testDoc("a", "one")); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(testDoc("b", "two")); err != nil {
		t.Fatal(err)
	}

	docs, total, err := store.List("one", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(docs) != 1 || docs[0].ID != "a" {
		t.Errorf("scoped list = %v (total %d)", docs, total)
	}
}

func TestStatusLifecycle(t *testing.T) {
	store := testutil.TestMetaStore(t)

	if err := store.Insert(testDoc("doc1", "default")); err != nil {
		t.Fatal(err)
	}
	if err := store.SetStatus("doc1", models.StatusPendingEmbedding, 2); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	pending, err := store.ListByStatus(models.StatusPendingEmbedding, 5)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 1 || pending[0].SyncAttempts != 2 {
		t.Fatalf("pending = %v", pending)
	}

	// Exhausted rows fall out of the repair candidate set.
	if err := store.SetStatus("doc1", models.StatusPendingEmbedding, 5); err != nil {
		t.Fatal(err)
	}
	pending, err = store.ListByStatus(models.StatusPendingEmbedding, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("exhausted row still listed: %v", pending)
	}
}

func TestCollectionsAndCount(t *testing.T) {
	store := testutil.TestMetaStore(t)

	for i, c := range []string{"one", "one", "two"} {
		if err := store.Insert(testDoc(fmt.Sprintf("doc%d", i), c)); err != nil {
			t.Fatal(err)
		}
	}

	cols, err := store.Collections()
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	if len(cols) != 2 {
		t.Errorf("collections = %v, want 2", cols)
	}

	n, err := store.Count("one")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("count(one) = %d, want 2", n)
	}
	all, err := store.Count("")
	if err != nil {
		t.Fatal(err)
	}
	if all != 3 {
		t.Errorf("count(all) = %d, want 3", all)
	}
}
