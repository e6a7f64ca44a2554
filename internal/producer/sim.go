package producer

import (
	"context"
	"math/rand"
	"time"

	"arbwatch/internal/graphcsr"
)

// RateRange bounds the uniformly-sampled rate SimStreamer assigns to
// generated edges.
type RateRange struct {
	Min float64
	Max float64
}

// SimStreamer generates synthetic edge batches over a fixed node population,
// for load-testing and demoing the pipeline without a CSV source.
type SimStreamer struct {
	NodeCount          int
	EdgeCountPerBatch  int
	RateRange          RateRange
	Interval           time.Duration
	Seed               int64

	rng *rand.Rand
}

// Run implements Producer. It generates batches forever until ctx is
// canceled, at which point it closes out and returns ctx.Err().
func (s *SimStreamer) Run(ctx context.Context, out chan<- graphcsr.EdgeBatch) error {
	defer close(out)

	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.Seed))
	}
	nodeCount := s.NodeCount
	if nodeCount < 2 {
		nodeCount = 2
	}
	edgeCount := s.EdgeCountPerBatch
	if edgeCount < 1 {
		edgeCount = 1
	}

	ticker := newTicker(s.Interval)
	defer ticker.Stop()

	for {
		batch := s.randomBatch(nodeCount, edgeCount)
		select {
		case out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *SimStreamer) randomBatch(nodeCount, edgeCount int) graphcsr.EdgeBatch {
	batch := make(graphcsr.EdgeBatch, 0, edgeCount)
	for i := 0; i < edgeCount; i++ {
		from := s.rng.Intn(nodeCount)
		to := s.rng.Intn(nodeCount)
		for to == from {
			to = s.rng.Intn(nodeCount)
		}
		batch = append(batch, graphcsr.RawEdge{
			From: from,
			To:   to,
			Rate: s.randomRate(),
		})
	}
	return batch
}

func (s *SimStreamer) randomRate() float64 {
	lo, hi := s.RateRange.Min, s.RateRange.Max
	if hi <= lo {
		lo, hi = 0.01, 100.0
	}
	return lo + s.rng.Float64()*(hi-lo)
}

// newTicker returns a ready-to-use ticker even for a non-positive interval,
// substituting a 1ms interval so callers don't need a special case.
func newTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return time.NewTicker(interval)
}
