package graphcsr

// Snapshot is an immutable, reference-counted view of the CSR arrays at a
// point in time. Taking a snapshot copies only the arrays pointer, never the
// underlying buffers, so it is cheap even under contention: the Searcher
// takes a shared lock just long enough to copy this handle, then reads it
// lock-free.
type Snapshot struct {
	arrays *arrays
}

// Snapshot returns a cheap point-in-time view of the graph's CSR arrays.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return &Snapshot{arrays: g.arrays}
}

// NumNodes returns |V| for this snapshot.
func (s *Snapshot) NumNodes() int {
	return s.arrays.nodeCount
}

// NumEdges returns |E| for this snapshot.
func (s *Snapshot) NumEdges() int {
	return len(s.arrays.edgeTargets)
}

// EdgeRange returns the half-open index range [start, end) of node u's
// outgoing edges: node_pointers[u]..node_pointers[u+1].
func (s *Snapshot) EdgeRange(u int) (start, end int) {
	return s.arrays.nodePointers[u], s.arrays.nodePointers[u+1]
}

// Target returns edge i's destination node.
func (s *Snapshot) Target(i int) int {
	return s.arrays.edgeTargets[i]
}

// Weight returns edge i's transformed weight, -ln(rate).
func (s *Snapshot) Weight(i int) float64 {
	return s.arrays.edgeWeights[i]
}

// Source returns edge i's source node in O(1), via edge_source_by_index.
func (s *Snapshot) Source(i int) int {
	return s.arrays.edgeSourceByIndex[i]
}

// Rate returns edge i's original exchange rate, exp(-weight).
func (s *Snapshot) Rate(i int) float64 {
	return ToRate(s.arrays.edgeWeights[i])
}

// AllEdges returns every edge index in the snapshot, source-major order.
func (s *Snapshot) AllEdges() []int {
	n := len(s.arrays.edgeTargets)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return all
}
