// Package index provides the indexer façade: it orchestrates an
// embedder, the in-memory HNSW graph, the brute-force fallback, and the
// durable store behind add/search/list/clear operations. Embedding
// happens before any graph mutation, so an embedder failure never
// leaves a partially-written document behind.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/annstore/internal/embed"
	"github.com/nvandessel/annstore/internal/graph"
	"github.com/nvandessel/annstore/internal/store"
)

// SearchHit pairs a document with its similarity score for the query.
type SearchHit struct {
	Document store.Document
	Score    float64
}

// Indexer orchestrates embedding, graph search, and persistence.
type Indexer struct {
	mu         sync.RWMutex
	embedder   embed.Embedder
	graph      *graph.Graph
	bruteForce *graph.BruteForce
	store      *store.Store
}

// New constructs an Indexer, loading any previously persisted graph and
// document state from s. An empty store yields an empty index.
func New(ctx context.Context, s *store.Store, embedder embed.Embedder, cfg graph.Config) (*Indexer, error) {
	ix := &Indexer{store: s, embedder: embedder, graph: graph.New(cfg), bruteForce: graph.NewBruteForce()}

	meta, ok, err := s.GetMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: loading meta: %w", err)
	}
	if ok {
		nodes, err := s.AllNodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("index: loading nodes: %w", err)
		}
		for _, n := range nodes {
			ix.graph.RestoreNode(n)
		}
		ix.graph.RestoreMeta(meta)
	}

	docs, err := s.AllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: loading documents: %w", err)
	}
	for _, d := range docs {
		ix.bruteForce.Insert(d.ID, d.Embedding)
	}

	return ix, nil
}

// SetEmbedder rebinds the active embedder. This is the only operation
// that may replace the indexer's embedder collaborator; it does not
// touch already-indexed vectors (see the migration controller for
// rebuilding the index under a new embedder).
func (ix *Indexer) SetEmbedder(e embed.Embedder) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.embedder = e
}

// Embedder returns the currently active embedder.
func (ix *Indexer) Embedder() embed.Embedder {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.embedder
}

// AddDocument embeds text, assigns it a fresh id, and indexes it.
func (ix *Indexer) AddDocument(ctx context.Context, text string, metadata map[string]any) (store.Document, error) {
	ix.mu.RLock()
	embedder := ix.embedder
	ix.mu.RUnlock()

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return store.Document{}, fmt.Errorf("index: embedding failed: %w", err)
	}

	doc := store.Document{
		ID:        uuid.NewString(),
		Text:      text,
		Metadata:  metadata,
		Embedding: vec,
		CreatedAt: time.Now(),
	}

	if err := ix.indexEmbedded(ctx, []store.Document{doc}); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// AddDocuments embeds and indexes a batch of texts in one call.
func (ix *Indexer) AddDocuments(ctx context.Context, texts []string, metadatas []map[string]any) ([]store.Document, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	embedder := ix.embedder
	ix.mu.RUnlock()

	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("index: embedding batch failed: %w", err)
	}

	now := time.Now()
	docs := make([]store.Document, len(texts))
	for i, text := range texts {
		var md map[string]any
		if i < len(metadatas) {
			md = metadatas[i]
		}
		docs[i] = store.Document{ID: uuid.NewString(), Text: text, Metadata: md, Embedding: vecs[i], CreatedAt: now}
	}

	if err := ix.indexEmbedded(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// IndexDocuments persists already-embedded documents directly, without
// calling the embedder. Used by the migration controller, which embeds
// documents itself under the target embedder before re-indexing them.
func (ix *Indexer) IndexDocuments(ctx context.Context, docs []store.Document) error {
	return ix.indexEmbedded(ctx, docs)
}

// indexEmbedded inserts each document into the graph and brute-force
// index, then persists the document and every node the insertions
// touched in one granular write.
func (ix *Indexer) indexEmbedded(ctx context.Context, docs []store.Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	touchedSet := make(map[string]struct{})
	for _, doc := range docs {
		touched, err := ix.graph.Insert(doc.ID, doc.Embedding)
		if err != nil {
			return fmt.Errorf("index: graph insert %s: %w", doc.ID, err)
		}
		ix.bruteForce.Insert(doc.ID, doc.Embedding)
		for _, id := range touched {
			touchedSet[id] = struct{}{}
		}

		if err := ix.store.PutDocument(ctx, doc); err != nil {
			return fmt.Errorf("index: persisting document %s: %w", doc.ID, err)
		}
	}

	nodes := make([]graph.NodeView, 0, len(touchedSet))
	for id := range touchedSet {
		if v, ok := ix.graph.NodeView(id); ok {
			nodes = append(nodes, v)
		}
	}
	if err := ix.store.PutNodes(ctx, nodes); err != nil {
		return fmt.Errorf("index: persisting touched nodes: %w", err)
	}
	return ix.store.PutMeta(ctx, ix.graph.Meta())
}

// Search embeds queryText and returns its k most similar documents.
// useBruteForce opts into the exact-search fallback instead of the
// approximate HNSW graph.
func (ix *Indexer) Search(ctx context.Context, queryText string, k int, useBruteForce bool) ([]SearchHit, error) {
	if k <= 0 {
		k = 5
	}

	ix.mu.RLock()
	embedder := ix.embedder
	ix.mu.RUnlock()

	vec, err := embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("index: embedding query: %w", err)
	}

	ix.mu.RLock()
	var results []graph.Result
	if useBruteForce {
		results = ix.bruteForce.Search(vec, k)
	} else {
		results = ix.graph.Search(vec, k)
	}
	ix.mu.RUnlock()

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		doc, err := ix.store.GetDocument(ctx, r.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Ghost node: the graph references an id the document store
			// no longer has. Tolerated; healed by a future rebuild.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("index: loading document %s: %w", r.ID, err)
		}
		hits = append(hits, SearchHit{Document: doc, Score: r.Score})
	}
	return hits, nil
}

// GetAllDocuments returns every stored document.
func (ix *Indexer) GetAllDocuments(ctx context.Context) ([]store.Document, error) {
	return ix.store.AllDocuments(ctx)
}

// Len reports how many vectors are currently indexed.
func (ix *Indexer) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Len()
}

// Clear wipes documents, the graph, and the brute-force index.
func (ix *Indexer) Clear(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.store.Clear(ctx); err != nil {
		return fmt.Errorf("index: clearing store: %w", err)
	}
	ix.graph.Clear()
	ix.bruteForce.Clear()
	return nil
}

// ResetIndex wipes the graph and brute-force index but leaves documents
// in place, for the migration controller to re-embed and re-insert.
func (ix *Indexer) ResetIndex(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.store.ClearIndex(ctx); err != nil {
		return fmt.Errorf("index: resetting index: %w", err)
	}
	ix.graph.Clear()
	ix.bruteForce.Clear()
	return nil
}
