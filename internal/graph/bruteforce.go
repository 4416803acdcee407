package graph

import (
	"sort"
	"sync"

	"github.com/nvandessel/annstore/internal/vecmath"
)

// BruteForce performs exhaustive cosine-similarity search. It backs the
// explicit exact-search fallback carved out of the approximate-retrieval
// Non-goal: a caller that opts in gets true top-k instead of HNSW's
// approximation, at O(n) cost per query.
type BruteForce struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewBruteForce creates an empty brute-force index.
func NewBruteForce() *BruteForce {
	return &BruteForce{vectors: make(map[string][]float32)}
}

// Insert adds or replaces the vector for id.
func (b *BruteForce) Insert(id string, vector []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	b.vectors[id] = cp
}

// Remove deletes id. No-op if absent.
func (b *BruteForce) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.vectors, id)
}

// Len returns the number of vectors held.
func (b *BruteForce) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.vectors)
}

// Clear removes every vector.
func (b *BruteForce) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vectors = make(map[string][]float32)
}

// Search returns the k vectors most similar to query, sorted by
// descending score, computed exhaustively.
func (b *BruteForce) Search(query []float32, k int) []Result {
	if k <= 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.vectors) == 0 {
		return nil
	}

	results := make([]Result, 0, len(b.vectors))
	for id, vec := range b.vectors {
		results = append(results, Result{ID: id, Score: vecmath.CosineSimilarity(query, vec)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}
