// Package detector runs the queue-based Bellman-Ford (SPFA) negative-cycle
// search over a graphcsr snapshot and reconstructs any profitable cycle
// found.
package detector

import (
	"errors"

	"arbwatch/internal/graphcsr"
)

// ErrGraphInconsistency signals that cycle reconstruction hit a dangling
// predecessor — the graph raced a concurrent rebuild mid-walk. The caller
// should treat this run as "no cycle found" and retry on the next snapshot.
var ErrGraphInconsistency = errors.New("detector: graph inconsistent during cycle reconstruction")

// Edge is a single hop of a reported cycle.
type Edge struct {
	From int
	To   int
	Rate float64
}

// Cycle is a detected, verified profitable arbitrage cycle.
type Cycle struct {
	Path       []Edge
	Rates      []float64
	LogRateSum float64 // strictly negative
}

// ProfitFactor returns the product of the cycle's rates (> 1 for profit).
func (c *Cycle) ProfitFactor() float64 {
	return graphcsr.ToRate(c.LogRateSum)
}

// Detect runs SPFA over snap with the given hop_cap (relax-count threshold
// for declaring a negative cycle). hopCap <= 0 selects the default of
// |V|+1, the recommended resolution to spec's floating-point-tie Open
// Question (see DESIGN.md).
//
// distance[v] is initialized to 0 for every node — a virtual super-source —
// so detection is sound even over disconnected graphs: any node can seed a
// cycle.
//
// Returns (nil, nil) when no profitable cycle exists. Returns
// (nil, ErrGraphInconsistency) when reconstruction could not complete
// because of a concurrent mutation; this is not a fatal error.
func Detect(snap *graphcsr.Snapshot, hopCap int) (*Cycle, error) {
	n := snap.NumNodes()
	if n == 0 {
		return nil, nil
	}
	if hopCap <= 0 {
		hopCap = n + 1
	}

	distance := make([]float64, n)
	inQueue := make([]bool, n)
	relaxCount := make([]int, n)
	predEdgeIdx := make([]int, n)
	for v := range predEdgeIdx {
		predEdgeIdx[v] = -1
	}

	queue := make([]int, n)
	for v := 0; v < n; v++ {
		queue[v] = v
		inQueue[v] = true
	}

	witness := -1
	for len(queue) > 0 && witness < 0 {
		u := queue[0]
		queue = queue[1:]
		inQueue[u] = false

		start, end := snap.EdgeRange(u)
		for i := start; i < end; i++ {
			v := snap.Target(i)
			newDist := distance[u] + snap.Weight(i)
			if newDist >= distance[v] {
				continue
			}
			distance[v] = newDist
			predEdgeIdx[v] = i
			if inQueue[v] {
				continue
			}
			queue = append(queue, v)
			inQueue[v] = true
			relaxCount[v]++
			if relaxCount[v] >= hopCap {
				witness = v
				break
			}
		}
	}

	if witness < 0 {
		return nil, nil
	}

	return reconstruct(snap, witness, predEdgeIdx, n)
}

// reconstruct walks the predecessor arena back from a witness node to
// extract the negative cycle, per spec.md §4.2:
//  1. walk back exactly |V| hops to guarantee the walk has entered a cycle,
//  2. walk again from that terminus recording edges until returning to it,
//  3. map edge indices to (source, target, rate) and verify the sum is
//     negative before returning it.
func reconstruct(snap *graphcsr.Snapshot, witness int, predEdgeIdx []int, n int) (*Cycle, error) {
	cur := witness
	for i := 0; i < n; i++ {
		pe := predEdgeIdx[cur]
		if pe < 0 {
			return nil, ErrGraphInconsistency
		}
		cur = snap.Source(pe)
	}
	start := cur

	var edgeIdxs []int
	for {
		pe := predEdgeIdx[cur]
		if pe < 0 {
			return nil, ErrGraphInconsistency
		}
		edgeIdxs = append(edgeIdxs, pe)
		cur = snap.Source(pe)
		if cur == start {
			break
		}
		if len(edgeIdxs) > n {
			return nil, ErrGraphInconsistency
		}
	}

	for i, j := 0, len(edgeIdxs)-1; i < j; i, j = i+1, j-1 {
		edgeIdxs[i], edgeIdxs[j] = edgeIdxs[j], edgeIdxs[i]
	}

	path := make([]Edge, len(edgeIdxs))
	rates := make([]float64, len(edgeIdxs))
	var logSum float64
	for i, ei := range edgeIdxs {
		rate := snap.Rate(ei)
		path[i] = Edge{From: snap.Source(ei), To: snap.Target(ei), Rate: rate}
		rates[i] = rate
		logSum += snap.Weight(ei)
	}

	if !isValidCycle(path) || !(logSum < 0) {
		// Either the closure invariant failed or the profit check did —
		// both indicate a race with a concurrent rebuild rather than a
		// real non-cycle, since SPFA only hands us witnesses whose
		// relax-count crossed hop_cap.
		return nil, ErrGraphInconsistency
	}

	return &Cycle{Path: path, Rates: rates, LogRateSum: logSum}, nil
}

func isValidCycle(path []Edge) bool {
	if len(path) == 0 {
		return false
	}
	if path[0].From != path[len(path)-1].To {
		return false
	}
	for i := 0; i < len(path)-1; i++ {
		if path[i].To != path[i+1].From {
			return false
		}
	}
	return true
}
