// Command watchdog runs the arbitrage cycle detection pipeline: a producer
// streams rate-graph edges, a writer commits them into a CSR graph, and a
// searcher periodically scans it for negative-weight (profitable) cycles.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbwatch/internal/config"
	"arbwatch/internal/detector"
	"arbwatch/internal/graphcsr"
	"arbwatch/internal/metrics"
	"arbwatch/internal/persistence"
	"arbwatch/internal/producer"
	"arbwatch/internal/searcher"
	"arbwatch/internal/writer"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	mode := "sim"
	var csvPath string
	if args := flag.Args(); len(args) > 0 {
		mode = args[0]
		if mode == "csv" {
			if len(args) < 2 {
				log.Fatal().Msg("csv mode requires a path argument: watchdog csv <path>")
			}
			csvPath = args[1]
		} else if mode != "sim" {
			log.Fatal().Str("mode", mode).Msg("unknown subcommand, expected \"sim\" or \"csv <path>\"")
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if csvPath != "" {
		cfg.Producer.CsvPath = csvPath
	}

	setupLogging(cfg.Logging)
	log.Info().Str("mode", mode).Msg("starting watchdog")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, mode, cfg); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("application error")
	}

	log.Info().Msg("watchdog shutdown complete")
}

func run(ctx context.Context, mode string, cfg *config.Config) error {
	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := m.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			m.Shutdown(shutdownCtx)
		}()
		log.Info().Int("port", cfg.Metrics.Port).Msg("metrics server started")
	}

	store, err := persistence.NewStore(cfg.Persistence.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("path", cfg.Persistence.SQLitePath).Msg("sqlite initialized")

	runID, err := store.StartRun(ctx, mode, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record run start")
	}
	defer func() {
		if runID != 0 {
			store.EndRun(context.Background(), runID)
		}
	}()

	graph := graphcsr.NewGraph(cfg.Writer.RebuildLimit)

	var prod producer.Producer
	switch mode {
	case "csv":
		prod = &producer.CsvStreamer{
			Path:        cfg.Producer.CsvPath,
			BatchSize:   cfg.Producer.BatchSize,
			Interval:    cfg.Producer.Interval,
			OnMalformed: producer.OnMalformed(cfg.Producer.OnMalformed),
		}
	default:
		prod = &producer.SimStreamer{
			NodeCount:         cfg.Simulator.NodeCount,
			EdgeCountPerBatch: cfg.Simulator.EdgeCountPerBatch,
			RateRange:         producer.RateRange{Min: cfg.Simulator.RateRange.Min, Max: cfg.Simulator.RateRange.Max},
			Interval:          cfg.Producer.Interval,
			Seed:              cfg.Simulator.Seed,
		}
	}

	edgeCh := make(chan graphcsr.EdgeBatch, cfg.Producer.ChannelCapacity)
	cycleCh := make(chan *detector.Cycle, cfg.Searcher.OutputChannelCapacity)

	w := &writer.Writer{
		Graph:    graph,
		Recorder: &rebuildRecorder{store: store},
		Metrics:  m,
	}
	s := &searcher.Searcher{
		Graph:    graph,
		HopCap:   cfg.Searcher.HopCap,
		Interval: cfg.Searcher.Interval,
		Out:      cycleCh,
		Recorder: &cycleRecorder{store: store, sourceTag: mode},
		Metrics:  m,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msg("starting producer")
		return prod.Run(gCtx, edgeCh)
	})
	g.Go(func() error {
		log.Info().Msg("starting writer")
		return w.Run(gCtx, edgeCh)
	})
	g.Go(func() error {
		log.Info().Msg("starting searcher")
		return s.Run(gCtx)
	})
	g.Go(func() error {
		return logCycles(gCtx, cycleCh)
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		select {
		case waitErr = <-done:
		case <-time.After(cfg.ShutdownTimeout):
			log.Warn().Dur("timeout", cfg.ShutdownTimeout).Msg("shutdown timeout exceeded, abandoning tasks")
			return nil
		}
	}
	if waitErr != nil && waitErr != context.Canceled {
		return waitErr
	}
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func logCycles(ctx context.Context, ch <-chan *detector.Cycle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cycle, ok := <-ch:
			if !ok {
				return nil
			}
			log.Info().
				Str("cycle", cycle.String()).
				Float64("profit_factor", cycle.ProfitFactor()).
				Msg("ARBITRAGE CYCLE DETECTED")
		}
	}
}

// rebuildRecorder adapts persistence.Store to writer.RebuildRecorder.
type rebuildRecorder struct {
	store *persistence.Store
}

func (r *rebuildRecorder) RecordRebuild(nodeCount, edgeCount, pendingApplied int, duration time.Duration) {
	if err := r.store.RecordRebuild(context.Background(), nodeCount, edgeCount, pendingApplied, duration); err != nil {
		log.Warn().Err(err).Msg("failed to persist rebuild record")
	}
}

// cycleRecorder adapts persistence.Store to searcher.CycleRecorder.
type cycleRecorder struct {
	store     *persistence.Store
	sourceTag string
}

func (c *cycleRecorder) RecordCycle(cycle *detector.Cycle) {
	if err := c.store.RecordCycle(context.Background(), cycle.Nodes(), cycle.Rates, cycle.LogRateSum, cycle.ProfitFactor(), c.sourceTag); err != nil {
		log.Warn().Err(err).Msg("failed to persist cycle record")
	}
}

