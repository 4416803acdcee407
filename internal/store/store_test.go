package store

import (
	"context"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nvandessel/annstore/internal/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_DocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{
		ID:        "d1",
		Text:      "hello world",
		Metadata:  map[string]any{"source": "test"},
		Embedding: []float32{1, 2, 3},
		CreatedAt: time.Now(),
	}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}

	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Text != doc.Text || len(got.Embedding) != 3 {
		t.Errorf("round-tripped document mismatch: %+v", got)
	}
}

func TestStore_GetDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetDocument(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_AllDocumentsOrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		doc := Document{ID: id, Text: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.PutDocument(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.AllDocuments(ctx)
	if err != nil {
		t.Fatalf("AllDocuments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(all))
	}
	wantOrder := []string{"c", "a", "b"}
	for i, doc := range all {
		if doc.ID != wantOrder[i] {
			t.Errorf("expected order %v, got position %d = %s", wantOrder, i, doc.ID)
		}
	}
}

func TestStore_PutNodesChunking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nodes := make([]graph.NodeView, 1200)
	for i := range nodes {
		nodes[i] = graph.NodeView{ID: string(rune('a' + i%26)) + string(rune(i)), Vector: []float32{float32(i)}}
	}
	if err := s.PutNodes(ctx, nodes); err != nil {
		t.Fatalf("PutNodes: %v", err)
	}

	all, err := s.AllNodes(ctx)
	if err != nil {
		t.Fatalf("AllNodes: %v", err)
	}
	if len(all) != len(nodes) {
		t.Errorf("expected %d nodes, got %d", len(nodes), len(all))
	}
}

func TestStore_MetaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetMeta(ctx); err != nil || ok {
		t.Fatalf("expected no meta initially, ok=%v err=%v", ok, err)
	}

	meta := graph.Meta{M: 16, EfConstruction: 200, EfSearch: 200, MaxLevel: 2, EntryPointID: "b1", Dimension: 4}
	if err := s.PutMeta(ctx, meta); err != nil {
		t.Fatalf("PutMeta: %v", err)
	}

	got, ok, err := s.GetMeta(ctx)
	if err != nil || !ok {
		t.Fatalf("GetMeta: ok=%v err=%v", ok, err)
	}
	if got.EntryPointID != "b1" || got.MaxLevel != 2 {
		t.Errorf("meta mismatch: %+v", got)
	}
}

func TestStore_ClearIndexLeavesDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.PutDocument(ctx, Document{ID: "d1", CreatedAt: time.Now()})
	_ = s.PutNodes(ctx, []graph.NodeView{{ID: "d1", Vector: []float32{1}}})
	_ = s.PutMeta(ctx, graph.Meta{EntryPointID: "d1"})

	if err := s.ClearIndex(ctx); err != nil {
		t.Fatalf("ClearIndex: %v", err)
	}

	if _, err := s.GetDocument(ctx, "d1"); err != nil {
		t.Errorf("expected document to survive ClearIndex, got %v", err)
	}
	if _, err := s.GetNode(ctx, "d1"); err != ErrNotFound {
		t.Errorf("expected node to be gone after ClearIndex, got %v", err)
	}
	if _, ok, _ := s.GetMeta(ctx); ok {
		t.Error("expected meta to be gone after ClearIndex")
	}
}

func TestStore_ClearWipesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.PutDocument(ctx, Document{ID: "d1", CreatedAt: time.Now()})
	_ = s.PutNodes(ctx, []graph.NodeView{{ID: "d1", Vector: []float32{1}}})
	_ = s.PutMeta(ctx, graph.Meta{EntryPointID: "d1"})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := s.GetDocument(ctx, "d1"); err != ErrNotFound {
		t.Errorf("expected document gone after Clear, got %v", err)
	}
	all, _ := s.AllDocuments(ctx)
	if len(all) != 0 {
		t.Errorf("expected 0 documents after Clear, got %d", len(all))
	}
}

func TestStore_GhostNodeToleratedOnAllDocuments(t *testing.T) {
	// A document whose ordering entry survives but whose payload was
	// removed independently should be skipped, not fatal.
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{ID: "d1", Text: "x", CreatedAt: time.Now()}
	_ = s.PutDocument(ctx, doc)
	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey("d1"))
	})

	all, err := s.AllDocuments(ctx)
	if err != nil {
		t.Fatalf("AllDocuments should tolerate a ghost entry, got error: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected ghost entry to be skipped, got %v", all)
	}
}
