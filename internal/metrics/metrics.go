package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus metrics for the arbitrage watcher pipeline.
type Metrics struct {
	// Producer metrics
	EdgesReceived   *prometheus.CounterVec
	MalformedRows   prometheus.Counter
	ProducerChanLen prometheus.Gauge

	// Writer metrics
	StageLatency   prometheus.Histogram
	RebuildLatency prometheus.Histogram
	PendingEdges   prometheus.Gauge
	Rebuilds       prometheus.Counter

	// Graph metrics
	GraphNodes prometheus.Gauge
	GraphEdges prometheus.Gauge

	// Searcher metrics
	DetectionLatency prometheus.Histogram
	CyclesFound      prometheus.Counter
	SearcherChanLen  prometheus.Gauge

	server *http.Server
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		EdgesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbwatch_edges_received_total",
				Help: "Total number of edges received by producer type",
			},
			[]string{"producer"},
		),
		MalformedRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbwatch_malformed_rows_total",
				Help: "Total number of CSV rows that failed to decode",
			},
		),
		ProducerChanLen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbwatch_producer_channel_length",
				Help: "Current number of batches buffered in the producer->writer channel",
			},
		),
		StageLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbwatch_stage_latency_seconds",
				Help:    "Time to stage an edge batch under the exclusive lock",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10us to ~20ms
			},
		),
		RebuildLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbwatch_rebuild_latency_seconds",
				Help:    "Time to build and commit replacement CSR arrays",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
			},
		),
		PendingEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbwatch_pending_edges",
				Help: "Current number of staged, not-yet-rebuilt edges",
			},
		),
		Rebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbwatch_rebuilds_total",
				Help: "Total number of committed CSR rebuilds",
			},
		),
		GraphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbwatch_graph_nodes",
				Help: "Current number of nodes in the committed graph",
			},
		),
		GraphEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbwatch_graph_edges",
				Help: "Current number of directed edges in the committed graph",
			},
		),
		DetectionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbwatch_detection_latency_seconds",
				Help:    "Time to run SPFA cycle detection on a snapshot",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
			},
		),
		CyclesFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbwatch_cycles_found_total",
				Help: "Total number of negative cycles found and published",
			},
		),
		SearcherChanLen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbwatch_searcher_channel_length",
				Help: "Current number of cycles buffered in the searcher output channel",
			},
		),
	}

	prometheus.MustRegister(
		m.EdgesReceived,
		m.MalformedRows,
		m.ProducerChanLen,
		m.StageLatency,
		m.RebuildLatency,
		m.PendingEdges,
		m.Rebuilds,
		m.GraphNodes,
		m.GraphEdges,
		m.DetectionLatency,
		m.CyclesFound,
		m.SearcherChanLen,
	)

	return m
}

// StartServer starts the HTTP server for Prometheus metrics.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", port).Str("path", path).Msg("starting metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	return nil
}

// Shutdown gracefully stops the metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

// RecordEdgesReceived increments the edge counter for the given producer.
func (m *Metrics) RecordEdgesReceived(producer string, n int) {
	m.EdgesReceived.WithLabelValues(producer).Add(float64(n))
}

// RecordMalformedRow increments the malformed-row counter.
func (m *Metrics) RecordMalformedRow() {
	m.MalformedRows.Inc()
}

// SetProducerChanLen sets the current producer channel occupancy.
func (m *Metrics) SetProducerChanLen(n int) {
	m.ProducerChanLen.Set(float64(n))
}

// RecordStageLatency records the time spent under the stage lock.
func (m *Metrics) RecordStageLatency(d time.Duration) {
	m.StageLatency.Observe(d.Seconds())
}

// RecordRebuild records a completed rebuild's duration and updates graph
// size gauges.
func (m *Metrics) RecordRebuild(nodes, edges int, d time.Duration) {
	m.Rebuilds.Inc()
	m.RebuildLatency.Observe(d.Seconds())
	m.GraphNodes.Set(float64(nodes))
	m.GraphEdges.Set(float64(edges))
}

// SetPendingEdges sets the current staged-edge count.
func (m *Metrics) SetPendingEdges(n int) {
	m.PendingEdges.Set(float64(n))
}

// RecordDetectionLatency records the time to run cycle detection.
func (m *Metrics) RecordDetectionLatency(d time.Duration) {
	m.DetectionLatency.Observe(d.Seconds())
}

// RecordCycleFound increments the cycles-found counter.
func (m *Metrics) RecordCycleFound() {
	m.CyclesFound.Inc()
}

// SetSearcherChanLen sets the current searcher output channel occupancy.
func (m *Metrics) SetSearcherChanLen(n int) {
	m.SearcherChanLen.Set(float64(n))
}
