// Package graph implements a Hierarchical Navigable Small World (HNSW)
// index from scratch: an arena of nodes addressed by id, hierarchical
// insertion, and layer-wise beam search. Unlike a wrapped third-party
// HNSW library, Insert reports exactly which node ids were mutated so a
// caller can persist only the touched slice of the graph.
package graph

import (
	"container/heap"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/nvandessel/annstore/internal/vecmath"
)

const maxLevelCap = 16

// Config holds the tunable HNSW construction/search parameters.
type Config struct {
	M               int     // max bidirectional links per node per layer
	EfConstruction  int     // candidate list size during insertion
	EfSearch        int     // candidate list size during search
	LevelMultiplier float64 // level generation parameter (ml)
}

func (c Config) withDefaults() Config {
	out := c
	if out.M <= 0 {
		out.M = 16
	}
	if out.EfConstruction <= 0 {
		out.EfConstruction = 200
	}
	if out.EfSearch <= 0 {
		out.EfSearch = 200
	}
	if out.LevelMultiplier <= 0 {
		out.LevelMultiplier = 1.0 / math.Log(float64(out.M))
	}
	return out
}

// node is the internal arena entry. Neighbor lists store ids, never
// pointers to other nodes, so the graph never holds a long-lived direct
// reference into another node's interior.
type node struct {
	id        string
	vector    []float32
	level     int
	neighbors [][]string // neighbors[layer] = ordered neighbor ids
}

func (n *node) neighborsAt(layer int) []string {
	if layer < 0 || layer >= len(n.neighbors) {
		return nil
	}
	return n.neighbors[layer]
}

// NodeView is the externally visible shape of a node, used by the
// persistence layer to serialize/restore individual nodes.
type NodeView struct {
	ID        string
	Vector    []float32
	Level     int
	Neighbors [][]string
}

// Meta is the externally visible shape of graph-level scalar state.
type Meta struct {
	M               int
	EfConstruction  int
	EfSearch        int
	LevelMultiplier float64
	MaxLevel        int
	EntryPointID    string
	Dimension       int
}

// Result pairs a node id with its similarity to a query vector.
type Result struct {
	ID    string
	Score float64
}

// Graph is a single in-memory HNSW index. All exported methods are safe
// for concurrent use, though the system as a whole assumes a single
// mutator at a time (see the migration/dispatch packages).
type Graph struct {
	mu         sync.RWMutex
	cfg        Config
	nodes      map[string]*node
	entryPoint string
	maxLevel   int
	dimension  int
}

// New creates an empty graph with the given configuration.
func New(cfg Config) *Graph {
	cfg = cfg.withDefaults()
	return &Graph{
		cfg:      cfg,
		nodes:    make(map[string]*node),
		maxLevel: -1,
	}
}

// Config returns the graph's effective configuration.
func (g *Graph) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Len returns the number of nodes currently in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Contains reports whether id is present in the graph.
func (g *Graph) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Dimension returns the vector dimension established by the first
// insertion, or 0 if the graph is empty.
func (g *Graph) Dimension() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dimension
}

// randomLevel draws a level by repeated coin flip against LevelMultiplier,
// capped at maxLevelCap so construction never runs away on a long tail.
func (g *Graph) randomLevel() int {
	level := 0
	for rand.Float64() < g.cfg.LevelMultiplier && level < maxLevelCap {
		level++
	}
	return level
}

// Insert adds vector under id and returns every node id mutated by the
// insertion (the new node plus any existing neighbor whose link list
// changed), in no particular order. Returns ErrDuplicateID if id already
// exists, or ErrDimensionMismatch if vector's length disagrees with the
// dimension established by the first insertion.
func (g *Graph) Insert(id string, vector []float32) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return nil, ErrDuplicateID
	}
	if g.dimension == 0 {
		g.dimension = len(vector)
	} else if len(vector) != g.dimension {
		return nil, ErrDimensionMismatch
	}

	level := g.randomLevel()
	vecCopy := make([]float32, len(vector))
	copy(vecCopy, vector)
	n := &node{id: id, vector: vecCopy, level: level, neighbors: make([][]string, level+1)}
	g.nodes[id] = n

	touched := map[string]struct{}{id: {}}

	if g.entryPoint == "" {
		g.entryPoint = id
		g.maxLevel = level
		return []string{id}, nil
	}

	ep := g.entryPoint
	for lc := g.maxLevel; lc > level; lc-- {
		nearest := g.searchLayer(vecCopy, ep, 1, lc)
		if len(nearest) > 0 {
			ep = nearest[0].ID
		}
	}

	startLayer := level
	if g.maxLevel < startLayer {
		startLayer = g.maxLevel
	}
	for lc := startLayer; lc >= 0; lc-- {
		candidates := g.searchLayer(vecCopy, ep, g.cfg.EfConstruction, lc)

		selected := g.selectNeighbors(candidates, g.cfg.M)

		for _, c := range selected {
			other := g.nodes[c.ID]
			g.link(n, other, lc)
			touched[c.ID] = struct{}{}
			g.pruneNeighbors(other, lc, g.cfg.M)
		}
		if len(selected) > 0 {
			ep = selected[0].ID
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = id
	}

	result := make([]string, 0, len(touched))
	for tid := range touched {
		result = append(result, tid)
	}
	return result, nil
}

// link creates a symmetric neighbor edge between a and b at layer.
func (g *Graph) link(a, b *node, layer int) {
	addNeighbor(a, layer, b.id)
	addNeighbor(b, layer, a.id)
}

func addNeighbor(n *node, layer int, id string) {
	for _, existing := range n.neighbors[layer] {
		if existing == id {
			return
		}
	}
	n.neighbors[layer] = append(n.neighbors[layer], id)
}

// pruneNeighbors trims n's neighbor list at layer down to maxConn,
// keeping the maxConn neighbors most similar to n.
func (g *Graph) pruneNeighbors(n *node, layer int, maxConn int) {
	neighbors := n.neighbors[layer]
	if len(neighbors) <= maxConn {
		return
	}

	scored := make([]Result, 0, len(neighbors))
	for _, id := range neighbors {
		nb, ok := g.nodes[id]
		if !ok {
			log.Printf("graph: neighbor id %q missing from arena, dropping from prune", id)
			continue
		}
		scored = append(scored, Result{ID: id, Score: vecmath.CosineSimilarity(n.vector, nb.vector)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) > maxConn {
		scored = scored[:maxConn]
	}
	trimmed := make([]string, len(scored))
	for i, s := range scored {
		trimmed[i] = s.ID
	}
	n.neighbors[layer] = trimmed
}

// searchLayer runs a best-first beam search for ef nearest neighbors of
// query at the given layer, starting from entryID.
func (g *Graph) searchLayer(query []float32, entryID string, ef int, layer int) []Result {
	entry, ok := g.nodes[entryID]
	if !ok {
		log.Printf("graph: searchLayer entry id %q missing from arena, skipping", entryID)
		return nil
	}

	visited := map[string]struct{}{entryID: {}}
	entrySim := vecmath.CosineSimilarity(query, entry.vector)

	candidates := newCandidateQueue()
	heap.Push(candidates, &pqItem{id: entryID, sim: entrySim})

	result := newResultQueue()
	heap.Push(result, &pqItem{id: entryID, sim: entrySim})

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(*pqItem)

		if result.Len() >= ef && current.sim < result.items[0].sim {
			break
		}

		curNode, ok := g.nodes[current.id]
		if !ok {
			log.Printf("graph: node %q missing from arena, skipping", current.id)
			continue
		}

		for _, nbID := range curNode.neighborsAt(layer) {
			if _, seen := visited[nbID]; seen {
				continue
			}
			visited[nbID] = struct{}{}

			nb, ok := g.nodes[nbID]
			if !ok {
				log.Printf("graph: neighbor id %q missing from arena, skipping", nbID)
				continue
			}
			sim := vecmath.CosineSimilarity(query, nb.vector)

			if result.Len() < ef || sim > result.items[0].sim {
				heap.Push(candidates, &pqItem{id: nbID, sim: sim})
				heap.Push(result, &pqItem{id: nbID, sim: sim})
				if result.Len() > ef {
					heap.Pop(result)
				}
			}
		}
	}

	out := make([]Result, len(result.items))
	for i, it := range result.items {
		out[i] = Result{ID: it.id, Score: it.sim}
	}
	return out
}

// selectNeighbors keeps the m candidates most similar to the inserted
// vector.
func (g *Graph) selectNeighbors(candidates []Result, m int) []Result {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	return candidates
}

// Search returns the k nodes most similar to query, sorted by descending
// score. Returns fewer than k if the graph has fewer nodes. An empty
// graph or k<=0 returns nil.
func (g *Graph) Search(query []float32, k int) []Result {
	return g.SearchWithEf(query, k, g.Config().EfSearch)
}

// SearchWithEf is Search with an explicit candidate-list size, exposed
// so callers (and tests) can trade recall for latency directly.
func (g *Graph) SearchWithEf(query []float32, k, ef int) []Result {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if k <= 0 || len(g.nodes) == 0 || g.entryPoint == "" {
		return nil
	}
	if ef < k {
		ef = k
	}

	ep := g.entryPoint
	for lc := g.maxLevel; lc > 0; lc-- {
		nearest := g.searchLayer(query, ep, 1, lc)
		if len(nearest) > 0 {
			ep = nearest[0].ID
		}
	}

	candidates := g.searchLayer(query, ep, ef, 0)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Clear removes every node, resetting the graph to its zero state.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*node)
	g.entryPoint = ""
	g.maxLevel = -1
	g.dimension = 0
}

// Meta snapshots the graph's scalar state for persistence.
func (g *Graph) Meta() Meta {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Meta{
		M:               g.cfg.M,
		EfConstruction:  g.cfg.EfConstruction,
		EfSearch:        g.cfg.EfSearch,
		LevelMultiplier: g.cfg.LevelMultiplier,
		MaxLevel:        g.maxLevel,
		EntryPointID:    g.entryPoint,
		Dimension:       g.dimension,
	}
}

// NodeView returns a copy of the node's persisted shape.
func (g *Graph) NodeView(id string) (NodeView, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return NodeView{}, false
	}
	return toView(n), true
}

// AllNodeViews returns a copy of every node's persisted shape, for a
// wholesale rebuild or a cold load of the entire graph.
func (g *Graph) AllNodeViews() []NodeView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeView, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, toView(n))
	}
	return out
}

func toView(n *node) NodeView {
	neighbors := make([][]string, len(n.neighbors))
	for i, layer := range n.neighbors {
		neighbors[i] = append([]string(nil), layer...)
	}
	return NodeView{ID: n.id, Vector: append([]float32(nil), n.vector...), Level: n.level, Neighbors: neighbors}
}

// RestoreNode inserts a node view verbatim, without running the
// construction algorithm. Used to reconstruct the in-memory graph from
// persisted nodes; callers must call RestoreMeta once every node has
// been restored so the entry point and max level are set correctly.
func (g *Graph) RestoreNode(v NodeView) {
	g.mu.Lock()
	defer g.mu.Unlock()
	neighbors := make([][]string, len(v.Neighbors))
	for i, layer := range v.Neighbors {
		neighbors[i] = append([]string(nil), layer...)
	}
	g.nodes[v.ID] = &node{
		id:        v.ID,
		vector:    append([]float32(nil), v.Vector...),
		level:     v.Level,
		neighbors: neighbors,
	}
	if g.dimension == 0 {
		g.dimension = len(v.Vector)
	}
}

// RestoreMeta applies persisted scalar state after RestoreNode has been
// called for every node.
func (g *Graph) RestoreMeta(m Meta) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = Config{M: m.M, EfConstruction: m.EfConstruction, EfSearch: m.EfSearch, LevelMultiplier: m.LevelMultiplier}.withDefaults()
	g.maxLevel = m.MaxLevel
	g.entryPoint = m.EntryPointID
	g.dimension = m.Dimension
}
