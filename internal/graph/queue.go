package graph

// pqItem is one entry in a searchLayer priority queue: a candidate node
// together with its similarity to the query vector currently being
// searched. Higher similarity is better throughout this package.
type pqItem struct {
	id  string
	sim float64
}

// pqHeap implements container/heap.Interface. With worstOnTop false it
// behaves as a max-heap (best candidate on top), used to drive expansion
// during searchLayer. With worstOnTop true it behaves as a min-heap
// (worst result on top), used to bound the result set at ef by evicting
// the weakest entry.
type pqHeap struct {
	items      []*pqItem
	worstOnTop bool
}

func newCandidateQueue() *pqHeap { return &pqHeap{worstOnTop: false} }
func newResultQueue() *pqHeap    { return &pqHeap{worstOnTop: true} }

func (h *pqHeap) Len() int { return len(h.items) }

func (h *pqHeap) Less(i, j int) bool {
	if h.worstOnTop {
		return h.items[i].sim < h.items[j].sim
	}
	return h.items[i].sim > h.items[j].sim
}

func (h *pqHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *pqHeap) Push(x any) {
	h.items = append(h.items, x.(*pqItem))
}

func (h *pqHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}
