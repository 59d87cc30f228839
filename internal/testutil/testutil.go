// Package testutil provides shared test helpers for setting up stores,
// indexes and document services.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/starford/munin/internal/docservice"
	"github.com/starford/munin/internal/metastore"
	"github.com/starford/munin/internal/storage"
	"github.com/starford/munin/internal/vecindex"
)

// TestMetaStore creates a temporary SQLite metadata store that is
// automatically cleaned up.
func TestMetaStore(t *testing.T) *metastore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "munin-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	meta, err := metastore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	return meta
}

// Embedder returns a deterministic embedding func: the vector depends
// only on the text bytes, so equal texts land at identical points and
// similarity ordering is stable across runs without a live provider.
func Embedder() vecindex.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, 8)
		for i, b := range []byte(text) {
			vec[i%8] += float32(b)
		}
		// chromem requires EmbeddingFunc to return a normalized
		// vector; it does not normalize document embeddings itself.
		vec[7] += 1
		var norm float32
		for _, v := range vec {
			norm += v * v
		}
		norm = float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] /= norm
		}
		return vec, nil
	}
}

// TestIndex creates an in-memory vector index with a deterministic
// embedder.
func TestIndex(t *testing.T) *vecindex.Chromem {
	t.Helper()
	return vecindex.NewInMemory(Embedder())
}

// TestRoot creates a temporary watched directory with a storage
// provider rooted at it.
func TestRoot(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// SilentLogger returns a logger that discards output, keeping test
// logs readable.
func SilentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestService wires a document service over temporary stores with the
// standard dialect defaults.
func TestService(t *testing.T) (*docservice.Service, *metastore.Store, *vecindex.Chromem) {
	t.Helper()
	meta := TestMetaStore(t)
	vec := TestIndex(t)
	resolver := docservice.CollectionResolver{
		StrictDefault:     "mind_default",
		PermissiveDefault: "default",
	}
	svc := docservice.New(meta, vec, resolver, SilentLogger())
	return svc, meta, vec
}
