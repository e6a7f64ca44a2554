package searcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"arbwatch/internal/detector"
	"arbwatch/internal/graphcsr"
)

type fakeCycleRecorder struct {
	mu    sync.Mutex
	count int
}

func (f *fakeCycleRecorder) RecordCycle(c *detector.Cycle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}

func TestSearcherPublishesFoundCycle(t *testing.T) {
	g, err := graphcsr.NewGraphFromEdges([]graphcsr.RawEdge{
		{From: 0, To: 1, Rate: 0.92},
		{From: 1, To: 2, Rate: 150.5},
		{From: 2, To: 0, Rate: 0.0074},
	}, 3, 1000)
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}

	out := make(chan *detector.Cycle, 1)
	rec := &fakeCycleRecorder{}
	s := &Searcher{Graph: g, HopCap: 0, Interval: 5 * time.Millisecond, Out: out, Recorder: rec}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case cycle := <-out:
		if cycle == nil || cycle.LogRateSum >= 0 {
			t.Fatalf("expected profitable cycle, got %v", cycle)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cycle on output channel")
	}

	cancel()
	<-done

	if rec.count == 0 {
		t.Error("expected RecordCycle to be called at least once")
	}
}

func TestSearcherNoOutputWithoutCycle(t *testing.T) {
	g, err := graphcsr.NewGraphFromEdges([]graphcsr.RawEdge{
		{From: 0, To: 1, Rate: 0.5},
		{From: 1, To: 2, Rate: 0.5},
		{From: 2, To: 0, Rate: 0.5},
	}, 3, 1000)
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}

	out := make(chan *detector.Cycle, 1)
	s := &Searcher{Graph: g, HopCap: 0, Interval: 5 * time.Millisecond, Out: out}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-done

	select {
	case cycle := <-out:
		t.Fatalf("expected no cycle published, got %v", cycle)
	default:
	}
}

func TestSearcherClosesOutputOnShutdown(t *testing.T) {
	g := graphcsr.NewGraph(10)
	out := make(chan *detector.Cycle)
	s := &Searcher{Graph: g, HopCap: 0, Interval: time.Millisecond, Out: out}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	<-done

	if _, ok := <-out; ok {
		t.Fatal("expected output channel to be closed after shutdown")
	}
}
