package graphcsr

import (
	"math"
	"testing"
)

func TestWeightRoundTrip(t *testing.T) {
	rates := []float64{0.92, 150.5, 0.0074, 1.0, 2.5}
	for _, r := range rates {
		w := ToWeight(r)
		got := ToRate(w)
		if math.Abs(got-r) > 1e-12 {
			t.Errorf("ToRate(ToWeight(%v)) = %v, want within 1e-12", r, got)
		}
	}
}

func TestValidRateRejectsNonPositive(t *testing.T) {
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if ValidRate(r) {
			t.Errorf("ValidRate(%v) = true, want false", r)
		}
	}
}

func TestStageEmptyBatchIsNoOp(t *testing.T) {
	g := NewGraph(10)
	before := g.PendingLen()
	trigger, err := g.Stage(nil)
	if err != nil {
		t.Fatalf("Stage(nil) error: %v", err)
	}
	if trigger {
		t.Error("empty batch should never trigger rebuild")
	}
	if g.PendingLen() != before {
		t.Errorf("pending length changed on empty batch: %d -> %d", before, g.PendingLen())
	}
}

func TestStageRejectsInvalidEdges(t *testing.T) {
	g := NewGraph(10)
	cases := []RawEdge{
		{From: -1, To: 0, Rate: 1.0},
		{From: 0, To: -1, Rate: 1.0},
		{From: 0, To: 1, Rate: 0},
		{From: 0, To: 1, Rate: -1},
		{From: 0, To: 1, Rate: math.NaN()},
	}
	for _, c := range cases {
		if _, err := g.Stage(EdgeBatch{c}); err == nil {
			t.Errorf("Stage(%+v) expected error, got nil", c)
		}
	}
	if g.PendingLen() != 0 {
		t.Errorf("rejected edges should not be staged, pending=%d", g.PendingLen())
	}
}

func TestStageTriggersAtRebuildLimit(t *testing.T) {
	g := NewGraph(3)
	trigger, _ := g.Stage(EdgeBatch{{From: 0, To: 1, Rate: 0.5}})
	if trigger {
		t.Fatal("should not trigger below limit")
	}
	trigger, _ = g.Stage(EdgeBatch{{From: 1, To: 2, Rate: 0.5}, {From: 2, To: 0, Rate: 0.5}})
	if !trigger {
		t.Fatal("should trigger once pending reaches limit")
	}
}

func TestRebuildSourceIndexInvariant(t *testing.T) {
	g := NewGraph(100)
	edges := EdgeBatch{
		{From: 0, To: 1, Rate: 0.92},
		{From: 1, To: 2, Rate: 150.5},
		{From: 2, To: 0, Rate: 0.0074},
		{From: 0, To: 2, Rate: 2.0},
	}
	g.Stage(edges)
	plan := g.PrepareRebuild()
	g.Commit(plan)

	snap := g.Snapshot()
	for u := 0; u < snap.NumNodes(); u++ {
		start, end := snap.EdgeRange(u)
		for i := start; i < end; i++ {
			if snap.Source(i) != u {
				t.Errorf("edge %d: Source()=%d, want %d (node_pointers range)", i, snap.Source(i), u)
			}
		}
	}
	if start, _ := snap.EdgeRange(0); start != 0 {
		t.Errorf("node_pointers[0] = %d, want 0", start)
	}
	if _, end := snap.EdgeRange(snap.NumNodes() - 1); end != snap.NumEdges() {
		t.Errorf("node_pointers[|V|] = %d, want |E|=%d", end, snap.NumEdges())
	}
}

func TestRebuildDeterminismRegardlessOfBatching(t *testing.T) {
	edges := []RawEdge{
		{From: 0, To: 1, Rate: 0.92},
		{From: 1, To: 2, Rate: 150.5},
		{From: 2, To: 0, Rate: 0.0074},
		{From: 3, To: 1, Rate: 4.2},
	}

	// One graph: all edges in a single batch.
	gAll := NewGraph(1)
	gAll.Stage(edges)
	gAll.Commit(gAll.PrepareRebuild())

	// Other graph: edges trickled in one at a time, each its own rebuild.
	gOne := NewGraph(1)
	for _, e := range edges {
		gOne.Stage(EdgeBatch{e})
		gOne.Commit(gOne.PrepareRebuild())
	}

	snapAll := gAll.Snapshot()
	snapOne := gOne.Snapshot()

	if snapAll.NumNodes() != snapOne.NumNodes() {
		t.Fatalf("node count differs: %d vs %d", snapAll.NumNodes(), snapOne.NumNodes())
	}
	if snapAll.NumEdges() != snapOne.NumEdges() {
		t.Fatalf("edge count differs: %d vs %d", snapAll.NumEdges(), snapOne.NumEdges())
	}
	for i := 0; i < snapAll.NumEdges(); i++ {
		if snapAll.Source(i) != snapOne.Source(i) || snapAll.Target(i) != snapOne.Target(i) {
			t.Errorf("edge %d differs: (%d->%d) vs (%d->%d)",
				i, snapAll.Source(i), snapAll.Target(i), snapOne.Source(i), snapOne.Target(i))
		}
		if math.Abs(snapAll.Weight(i)-snapOne.Weight(i)) > 1e-12 {
			t.Errorf("edge %d weight differs: %v vs %v", i, snapAll.Weight(i), snapOne.Weight(i))
		}
	}
}

func TestDuplicateResolutionLastWriteWins(t *testing.T) {
	g := NewGraph(1)
	g.Stage(EdgeBatch{{From: 0, To: 1, Rate: 0.9}})
	g.Commit(g.PrepareRebuild())
	g.Stage(EdgeBatch{{From: 0, To: 1, Rate: 0.92}})
	g.Commit(g.PrepareRebuild())

	snap := g.Snapshot()
	start, end := snap.EdgeRange(0)
	if end-start != 1 {
		t.Fatalf("expected exactly one edge from node 0, got %d", end-start)
	}
	if got := snap.Rate(start); math.Abs(got-0.92) > 1e-9 {
		t.Errorf("duplicate edge rate = %v, want 0.92 (last write)", got)
	}
}

func TestDuplicateResolutionWithinSingleBatch(t *testing.T) {
	g := NewGraph(10)
	g.Stage(EdgeBatch{
		{From: 0, To: 1, Rate: 0.9},
		{From: 0, To: 1, Rate: 0.92},
	})
	g.Commit(g.PrepareRebuild())

	snap := g.Snapshot()
	start, end := snap.EdgeRange(0)
	if end-start != 1 {
		t.Fatalf("expected dedup within batch, got %d edges", end-start)
	}
	if got := snap.Rate(start); math.Abs(got-0.92) > 1e-9 {
		t.Errorf("got rate %v, want 0.92", got)
	}
}

func TestNodeGrowth(t *testing.T) {
	g := NewGraph(10)
	g.Stage(EdgeBatch{{From: 0, To: 5, Rate: 1.5}})
	g.Commit(g.PrepareRebuild())

	if g.NodeCount() != 6 {
		t.Errorf("NodeCount() = %d, want 6 (max id 5 + 1)", g.NodeCount())
	}
}

func TestNewGraphFromEdgesRejectsBadInput(t *testing.T) {
	_, err := NewGraphFromEdges([]RawEdge{{From: 0, To: 1, Rate: -1}}, 2, 10)
	if err == nil {
		t.Fatal("expected error for non-positive rate")
	}
}

func TestNewGraphFromEdgesBuildsValidCSR(t *testing.T) {
	g, err := NewGraphFromEdges([]RawEdge{
		{From: 0, To: 1, Rate: 0.92},
		{From: 1, To: 2, Rate: 150.5},
		{From: 2, To: 0, Rate: 0.0074},
	}, 3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := g.Snapshot()
	if snap.NumNodes() != 3 || snap.NumEdges() != 3 {
		t.Fatalf("got nodes=%d edges=%d, want 3/3", snap.NumNodes(), snap.NumEdges())
	}
}
