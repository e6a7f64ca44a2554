// Package pipeline holds an end-to-end test of the producer -> writer ->
// searcher flow, wired the same way cmd/watchdog wires it.
package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arbwatch/internal/detector"
	"arbwatch/internal/graphcsr"
	"arbwatch/internal/searcher"
	"arbwatch/internal/writer"
)

// TestProducerWriterSearcherFlow feeds a small scripted edge sequence
// through a real Writer and Searcher pair and checks that the triangle
// arbitrage cycle comes out the other end.
func TestProducerWriterSearcherFlow(t *testing.T) {
	graph := graphcsr.NewGraph(3)

	edgeCh := make(chan graphcsr.EdgeBatch, 2)
	cycleCh := make(chan *detector.Cycle, 2)

	w := &writer.Writer{Graph: graph}
	s := &searcher.Searcher{
		Graph:    graph,
		HopCap:   0,
		Interval: 5 * time.Millisecond,
		Out:      cycleCh,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan error, 1)
	go func() { writerDone <- w.Run(ctx, edgeCh) }()

	searcherDone := make(chan error, 1)
	go func() { searcherDone <- s.Run(ctx) }()

	edgeCh <- graphcsr.EdgeBatch{
		{From: 0, To: 1, Rate: 0.92},
		{From: 1, To: 2, Rate: 150.5},
	}
	edgeCh <- graphcsr.EdgeBatch{
		{From: 2, To: 0, Rate: 0.0074},
	}
	close(edgeCh)

	require.NoError(t, <-writerDone)

	select {
	case cycle := <-cycleCh:
		require.NotNil(t, cycle)
		require.Less(t, cycle.LogRateSum, 0.0)
		require.ElementsMatch(t, []int{0, 1, 2}, uniqueFromNodes(cycle))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the searcher to publish a cycle")
	}

	cancel()
	<-searcherDone
}

// TestBackpressurePropagatesAcrossPipeline verifies a bounded
// producer->writer channel blocks further sends once full, matching the
// spec's "block, don't drop" backpressure contract end to end.
func TestBackpressurePropagatesAcrossPipeline(t *testing.T) {
	edgeCh := make(chan graphcsr.EdgeBatch, 2)
	edgeCh <- graphcsr.EdgeBatch{{From: 0, To: 1, Rate: 0.5}}
	edgeCh <- graphcsr.EdgeBatch{{From: 1, To: 2, Rate: 0.5}}

	blocked := make(chan struct{})
	go func() {
		edgeCh <- graphcsr.EdgeBatch{{From: 2, To: 0, Rate: 0.5}}
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("send on a full channel should have blocked instead of succeeding immediately")
	case <-time.After(20 * time.Millisecond):
	}

	graph := graphcsr.NewGraph(100)
	w := &writer.Writer{Graph: graph}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, edgeCh) }()

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("blocked send never unblocked once the writer started draining")
	}

	cancel()
	<-done
}

func uniqueFromNodes(c *detector.Cycle) []int {
	seen := map[int]struct{}{}
	var nodes []int
	for _, e := range c.Path {
		if _, ok := seen[e.From]; ok {
			continue
		}
		seen[e.From] = struct{}{}
		nodes = append(nodes, e.From)
	}
	return nodes
}
