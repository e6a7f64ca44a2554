// Package writer runs the two-phase stage/commit loop that applies producer
// edge batches to a graphcsr.Graph.
package writer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"arbwatch/internal/graphcsr"
)

// RebuildRecorder receives a notification each time the writer commits a
// rebuild, for persistence. Implementations must not block.
type RebuildRecorder interface {
	RecordRebuild(nodeCount, edgeCount, pendingApplied int, duration time.Duration)
}

// MetricsSink receives Prometheus instrumentation for each rebuild.
// Implementations must not block.
type MetricsSink interface {
	RecordRebuild(nodes, edges int, d time.Duration)
	SetPendingEdges(n int)
}

// Writer drains edge batches from a channel and applies them to Graph using
// the stage/rebuild/commit discipline: stage under a brief lock, build the
// merged CSR arrays unlocked, commit under a brief lock.
type Writer struct {
	Graph    *graphcsr.Graph
	Recorder RebuildRecorder
	Metrics  MetricsSink
}

// Run drains in until it closes or ctx is canceled, then performs a final
// rebuild of any remaining staged edges before returning. On cancellation it
// first applies the batches already buffered in in.
func (w *Writer) Run(ctx context.Context, in <-chan graphcsr.EdgeBatch) error {
	for {
		select {
		case batch, ok := <-in:
			if !ok {
				w.finalRebuild()
				return nil
			}
			w.applyBatch(batch)
		case <-ctx.Done():
		drain:
			for {
				select {
				case batch, ok := <-in:
					if !ok {
						break drain
					}
					w.applyBatch(batch)
				default:
					break drain
				}
			}
			w.finalRebuild()
			return ctx.Err()
		}
	}
}

func (w *Writer) applyBatch(batch graphcsr.EdgeBatch) {
	trigger, err := w.Graph.Stage(batch)
	if err != nil {
		log.Warn().Err(err).Int("batch_size", len(batch)).Msg("writer: rejected edge batch")
		return
	}
	if trigger {
		w.rebuild()
	}
}

func (w *Writer) finalRebuild() {
	if w.Graph.HasPending() {
		w.rebuild()
	}
}

func (w *Writer) rebuild() {
	start := time.Now()
	plan := w.Graph.PrepareRebuild()
	w.Graph.Commit(plan)
	duration := time.Since(start)

	snap := w.Graph.Snapshot()
	log.Info().
		Int("nodes", snap.NumNodes()).
		Int("edges", snap.NumEdges()).
		Int("pending_applied", plan.Consumed()).
		Dur("duration", duration).
		Msg("writer: committed rebuild")

	if w.Recorder != nil {
		w.Recorder.RecordRebuild(snap.NumNodes(), snap.NumEdges(), plan.Consumed(), duration)
	}
	if w.Metrics != nil {
		w.Metrics.RecordRebuild(snap.NumNodes(), snap.NumEdges(), duration)
		w.Metrics.SetPendingEdges(w.Graph.PendingLen())
	}
}
