package index

import (
	"context"
	"testing"

	"github.com/nvandessel/annstore/internal/embed"
	"github.com/nvandessel/annstore/internal/graph"
	"github.com/nvandessel/annstore/internal/store"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ix, err := New(context.Background(), s, embed.NewFake(8), graph.Config{})
	if err != nil {
		t.Fatalf("index.New: %v", err)
	}
	return ix
}

func TestIndexer_AddAndSearch(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	doc, err := ix.AddDocument(ctx, "the quick brown fox", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected a generated id")
	}

	hits, err := ix.Search(ctx, "the quick brown fox", 1, false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Document.ID != doc.ID {
		t.Fatalf("expected to find the added document, got %v", hits)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("expected near-exact match score, got %f", hits[0].Score)
	}
}

func TestIndexer_AddDocumentsBatch(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	docs, err := ix.AddDocuments(ctx, []string{"alpha", "beta", "gamma"}, nil)
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if ix.Len() != 3 {
		t.Fatalf("expected Len()=3, got %d", ix.Len())
	}
}

func TestIndexer_SearchBruteForceAndHNSWSameCountOnSmallSet(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	_, _ = ix.AddDocuments(ctx, []string{"one", "two", "three", "four"}, nil)

	hnswHits, err := ix.Search(ctx, "one", 4, false)
	if err != nil {
		t.Fatal(err)
	}
	bfHits, err := ix.Search(ctx, "one", 4, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(hnswHits) != len(bfHits) {
		t.Errorf("expected same result count for small set, got %d vs %d", len(hnswHits), len(bfHits))
	}
}

func TestIndexer_GetAllDocuments(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	_, _ = ix.AddDocument(ctx, "a", nil)
	_, _ = ix.AddDocument(ctx, "b", nil)

	all, err := ix.GetAllDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 documents, got %d", len(all))
	}
}

func TestIndexer_Clear(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	_, _ = ix.AddDocument(ctx, "a", nil)

	if err := ix.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ix.Len() != 0 {
		t.Errorf("expected Len()=0 after Clear, got %d", ix.Len())
	}
	all, _ := ix.GetAllDocuments(ctx)
	if len(all) != 0 {
		t.Errorf("expected 0 documents after Clear, got %d", len(all))
	}
}

func TestIndexer_ResetIndexKeepsDocuments(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	_, _ = ix.AddDocument(ctx, "a", nil)

	if err := ix.ResetIndex(ctx); err != nil {
		t.Fatalf("ResetIndex: %v", err)
	}
	if ix.Len() != 0 {
		t.Errorf("expected Len()=0 after ResetIndex, got %d", ix.Len())
	}
	all, _ := ix.GetAllDocuments(ctx)
	if len(all) != 1 {
		t.Errorf("expected document to survive ResetIndex, got %d", len(all))
	}
}

func TestIndexer_ReloadFromStore(t *testing.T) {
	s, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	ix, err := New(ctx, s, embed.NewFake(8), graph.Config{})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ix.AddDocument(ctx, "persisted", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Reload a fresh Indexer over the same store, as happens on restart.
	ix2, err := New(ctx, s, embed.NewFake(8), graph.Config{})
	if err != nil {
		t.Fatalf("reload New: %v", err)
	}
	if ix2.Len() != 1 {
		t.Fatalf("expected Len()=1 after reload, got %d", ix2.Len())
	}

	hits, err := ix2.Search(ctx, "persisted", 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Document.ID != doc.ID {
		t.Errorf("expected reloaded index to find %s, got %v", doc.ID, hits)
	}
}

func TestIndexer_DuplicateTextYieldsDistinctIDs(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	d1, err := ix.AddDocument(ctx, "same text", nil)
	if err != nil {
		t.Fatalf("AddDocument (1): %v", err)
	}
	d2, err := ix.AddDocument(ctx, "same text", nil)
	if err != nil {
		t.Fatalf("AddDocument (2): %v", err)
	}
	if d1.ID == d2.ID {
		t.Fatal("expected distinct ids for repeated identical text")
	}

	all, err := ix.GetAllDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both duplicates retrievable, got %d documents", len(all))
	}
}

func TestIndexer_GhostNodeSkippedDuringSearch(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	doc, err := ix.AddDocument(ctx, "will become a ghost", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a crash between the Nodes write and the Documents write:
	// the graph still references doc.ID but its payload is gone.
	if err := ix.store.DeleteDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Search(ctx, "will become a ghost", 5, false)
	if err != nil {
		t.Fatalf("Search should tolerate a ghost node, got error: %v", err)
	}
	for _, h := range hits {
		if h.Document.ID == doc.ID {
			t.Errorf("expected ghost node %s to be dropped from results", doc.ID)
		}
	}
}

func TestIndexer_SetEmbedderRebindsWithoutReindexing(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	_, _ = ix.AddDocument(ctx, "a", nil)

	newEmbedder := embed.NewFake(8)
	ix.SetEmbedder(newEmbedder)
	if ix.Embedder() != embed.Embedder(newEmbedder) {
		t.Error("expected SetEmbedder to rebind the active embedder")
	}
	if ix.Len() != 1 {
		t.Errorf("expected existing vectors untouched by SetEmbedder, got Len()=%d", ix.Len())
	}
}
