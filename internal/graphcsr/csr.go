// Package graphcsr implements the compact Compressed Sparse Row graph store:
// batched staging with amortized rebuild, and cheap reference-counted
// snapshots for lock-free concurrent reads.
package graphcsr

import (
	"fmt"
	"sort"
	"sync"
)

// RawEdge is the input form of an edge supplied by a producer.
type RawEdge struct {
	From int
	To   int
	Rate float64
}

// EdgeBatch is a non-empty sequence of validated edges emitted by a producer.
type EdgeBatch []RawEdge

// arrays holds one complete, immutable generation of the CSR layout. Once
// published into a Graph, an *arrays value is never mutated — only replaced.
type arrays struct {
	nodePointers      []int
	edgeTargets       []int
	edgeWeights       []float64
	edgeSourceByIndex []int
	nodeCount         int
}

func emptyArrays() *arrays {
	return &arrays{nodePointers: []int{0}}
}

// Graph owns the CSR arrays plus the staging buffer of not-yet-rebuilt
// edges. Readers take the shared lock only to copy out the current arrays
// pointer; the Writer takes the exclusive lock only during stage and
// commit, never during the rebuild computation itself.
type Graph struct {
	mu           sync.RWMutex
	arrays       *arrays
	pending      []RawEdge
	rebuildLimit int
}

// NewGraph creates an empty graph. rebuildLimit is the staged-edge count
// that triggers a rebuild (GraphCSR.rebuild_limit in spec terms).
func NewGraph(rebuildLimit int) *Graph {
	if rebuildLimit <= 0 {
		rebuildLimit = 1
	}
	return &Graph{
		arrays:       emptyArrays(),
		rebuildLimit: rebuildLimit,
	}
}

// NewGraphFromEdges constructs a graph directly from an initial edge set and
// a declared node count, per the GraphCSR construction contract.
func NewGraphFromEdges(edges []RawEdge, nodeCount, rebuildLimit int) (*Graph, error) {
	for _, e := range edges {
		if err := validateEdge(e); err != nil {
			return nil, err
		}
	}
	arr := buildArrays(emptyArrays(), edges, nodeCount)
	g := NewGraph(rebuildLimit)
	g.arrays = arr
	return g, nil
}

func validateEdge(e RawEdge) error {
	if e.From < 0 || e.To < 0 {
		return fmt.Errorf("graphcsr: negative node id in edge (%d -> %d)", e.From, e.To)
	}
	if !ValidRate(e.Rate) {
		return fmt.Errorf("graphcsr: non-positive or non-finite rate %v for edge (%d -> %d)", e.Rate, e.From, e.To)
	}
	return nil
}

// Stage appends a batch to the pending buffer. It does not touch the CSR
// arrays. Returns whether the pending count has reached rebuild_limit, which
// the Writer uses as its rebuild trigger. An empty batch is a no-op.
func (g *Graph) Stage(batch EdgeBatch) (bool, error) {
	if len(batch) == 0 {
		g.mu.RLock()
		trigger := len(g.pending) >= g.rebuildLimit
		g.mu.RUnlock()
		return trigger, nil
	}

	for _, e := range batch {
		if err := validateEdge(e); err != nil {
			return false, err
		}
	}

	g.mu.Lock()
	g.pending = append(g.pending, batch...)
	trigger := len(g.pending) >= g.rebuildLimit
	g.mu.Unlock()
	return trigger, nil
}

// RebuildPlan is the product of the unlocked rebuild computation: a fully
// built replacement set of CSR arrays plus how many pending edges it
// accounts for.
type RebuildPlan struct {
	arrays   *arrays
	consumed int
}

// Consumed returns how many pending edges this plan accounts for.
func (p *RebuildPlan) Consumed() int {
	return p.consumed
}

// PrepareRebuild reads the current committed arrays and pending buffer under
// a brief shared lock, then performs the O(|pending| log |pending|) sort,
// dedup, and array construction without holding any lock. Call Commit with
// the result to publish it.
func (g *Graph) PrepareRebuild() *RebuildPlan {
	g.mu.RLock()
	committed := g.arrays
	pendingCopy := make([]RawEdge, len(g.pending))
	copy(pendingCopy, g.pending)
	g.mu.RUnlock()

	return &RebuildPlan{
		arrays:   buildArrays(committed, pendingCopy, committed.nodeCount),
		consumed: len(pendingCopy),
	}
}

// Commit publishes a rebuild plan: the new arrays become visible to readers
// and the consumed prefix of pending is dropped. Held only for the swap.
func (g *Graph) Commit(plan *RebuildPlan) {
	g.mu.Lock()
	g.arrays = plan.arrays
	if plan.consumed >= len(g.pending) {
		g.pending = g.pending[:0]
	} else {
		g.pending = append(g.pending[:0], g.pending[plan.consumed:]...)
	}
	g.mu.Unlock()
}

// PendingLen reports the current staged-edge count (diagnostic/metrics use).
func (g *Graph) PendingLen() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pending)
}

// HasPending reports whether a final rebuild on shutdown would do any work.
func (g *Graph) HasPending() bool {
	return g.PendingLen() > 0
}

// NodeCount returns the current |V|.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.arrays.nodeCount
}

// rebuildEdge is a scratch record used only during array construction.
type rebuildEdge struct {
	to     int
	weight float64
}

// buildArrays merges committed edges with pending raw edges, applying
// last-write-wins deduplication by (from, to), then emits source-major CSR
// arrays with destinations sorted ascending within each source.
func buildArrays(committed *arrays, pending []RawEdge, minNodeCount int) *arrays {
	type key struct{ from, to int }
	merged := make(map[key]float64, len(committed.edgeTargets)+len(pending))

	for u := 0; u < committed.nodeCount; u++ {
		start, end := committed.nodePointers[u], committed.nodePointers[u+1]
		for i := start; i < end; i++ {
			merged[key{u, committed.edgeTargets[i]}] = ToRate(committed.edgeWeights[i])
		}
	}

	nodeCount := minNodeCount
	if nodeCount < committed.nodeCount {
		nodeCount = committed.nodeCount
	}
	for _, e := range pending {
		merged[key{e.From, e.To}] = e.Rate
		if e.From+1 > nodeCount {
			nodeCount = e.From + 1
		}
		if e.To+1 > nodeCount {
			nodeCount = e.To + 1
		}
	}

	bySource := make(map[int][]rebuildEdge, nodeCount)
	edgeCount := 0
	for k, rate := range merged {
		if !ValidRate(rate) {
			continue // non-finite weight disqualifies the edge
		}
		bySource[k.from] = append(bySource[k.from], rebuildEdge{to: k.to, weight: ToWeight(rate)})
		edgeCount++
	}

	arr := &arrays{
		nodePointers:      make([]int, nodeCount+1),
		edgeTargets:       make([]int, 0, edgeCount),
		edgeWeights:       make([]float64, 0, edgeCount),
		edgeSourceByIndex: make([]int, 0, edgeCount),
		nodeCount:         nodeCount,
	}

	idx := 0
	for u := 0; u < nodeCount; u++ {
		arr.nodePointers[u] = idx
		edges := bySource[u]
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].to < edges[j].to })
		for _, e := range edges {
			arr.edgeTargets = append(arr.edgeTargets, e.to)
			arr.edgeWeights = append(arr.edgeWeights, e.weight)
			arr.edgeSourceByIndex = append(arr.edgeSourceByIndex, u)
			idx++
		}
	}
	arr.nodePointers[nodeCount] = idx

	return arr
}
