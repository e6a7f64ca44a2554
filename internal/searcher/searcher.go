// Package searcher periodically snapshots a graph and searches it for
// profitable arbitrage cycles.
package searcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"arbwatch/internal/detector"
	"arbwatch/internal/graphcsr"
)

// CycleRecorder receives a notification for each cycle found, for
// persistence or metrics. Implementations must not block.
type CycleRecorder interface {
	RecordCycle(c *detector.Cycle)
}

// MetricsSink receives Prometheus instrumentation for each tick.
type MetricsSink interface {
	RecordDetectionLatency(d time.Duration)
	RecordCycleFound()
	SetSearcherChanLen(n int)
}

// Searcher ticks at Interval, takes a cheap graph snapshot, runs the
// detector off-lock, and publishes any cycle found onto Out.
type Searcher struct {
	Graph    *graphcsr.Graph
	HopCap   int
	Interval time.Duration
	Out      chan<- *detector.Cycle
	Recorder CycleRecorder
	Metrics  MetricsSink
}

// Run ticks until ctx is canceled, closing Out before returning.
func (s *Searcher) Run(ctx context.Context) error {
	defer close(s.Out)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.Interval).Int("hop_cap", s.HopCap).Msg("searcher: starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				log.Error().Err(err).Msg("searcher: tick failed")
			}
		}
	}
}

func (s *Searcher) tick(ctx context.Context) error {
	start := time.Now()
	snap := s.Graph.Snapshot()

	cycle, err := detector.Detect(snap, s.HopCap)
	duration := time.Since(start)
	if s.Metrics != nil {
		s.Metrics.RecordDetectionLatency(duration)
	}
	if err != nil {
		log.Debug().Err(err).Msg("searcher: detection inconclusive this tick")
		return nil
	}
	if cycle == nil {
		log.Debug().Dur("duration", duration).Int("nodes", snap.NumNodes()).Msg("searcher: no cycle found")
		return nil
	}

	log.Info().
		Str("cycle", cycle.String()).
		Float64("log_rate_sum", cycle.LogRateSum).
		Dur("duration", duration).
		Msg("searcher: cycle found")

	if s.Recorder != nil {
		s.Recorder.RecordCycle(cycle)
	}
	if s.Metrics != nil {
		s.Metrics.RecordCycleFound()
	}

	select {
	case s.Out <- cycle:
		if s.Metrics != nil {
			s.Metrics.SetSearcherChanLen(len(s.Out))
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
