package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Producer        ProducerConfig  `yaml:"producer"`
	Writer          WriterConfig    `yaml:"writer"`
	Searcher        SearcherConfig  `yaml:"searcher"`
	Simulator       SimulatorConfig `yaml:"simulator"`
	Persistence     PersistenceConfig `yaml:"persistence"`
	Metrics         MetricsConfig     `yaml:"metrics"`
	Logging         LoggingConfig     `yaml:"logging"`
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"`
}

// ProducerConfig holds edge-source settings shared by CsvStreamer and
// SimStreamer.
type ProducerConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	Interval        time.Duration `yaml:"interval"`
	ChannelCapacity int           `yaml:"channel_capacity"`
	CsvPath         string        `yaml:"csv_path"`
	OnMalformed     string        `yaml:"on_malformed"` // "skip" | "fail"
}

// WriterConfig holds two-phase commit settings.
type WriterConfig struct {
	RebuildLimit int `yaml:"rebuild_limit"`
}

// SearcherConfig holds cycle-search settings.
type SearcherConfig struct {
	Interval               time.Duration `yaml:"interval"`
	HopCap                 int           `yaml:"hop_cap"`
	OutputChannelCapacity  int           `yaml:"output_channel_capacity"`
}

// SimulatorConfig holds SimStreamer generation settings.
type SimulatorConfig struct {
	NodeCount         int       `yaml:"node_count"`
	EdgeCountPerBatch int       `yaml:"edge_count_per_batch"`
	RateRange         RateRange `yaml:"rate_range"`
	Seed              int64     `yaml:"seed"`
}

// RateRange bounds the uniformly-sampled rate assigned to simulated edges.
type RateRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// PersistenceConfig holds database settings.
type PersistenceConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	cfg.setDefaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if len(data) > 0 {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for all configuration options.
func (c *Config) setDefaults() {
	c.Producer = ProducerConfig{
		BatchSize:       50,
		Interval:        100 * time.Millisecond,
		ChannelCapacity: 16,
		OnMalformed:     "skip",
	}
	c.Writer = WriterConfig{
		RebuildLimit: 100,
	}
	c.Searcher = SearcherConfig{
		Interval:              time.Second,
		HopCap:                0, // 0 selects the |V|+1 default at detect time
		OutputChannelCapacity: 16,
	}
	c.Simulator = SimulatorConfig{
		NodeCount:         50,
		EdgeCountPerBatch: 10,
		RateRange:         RateRange{Min: 0.01, Max: 100.0},
		Seed:              1,
	}
	c.Persistence = PersistenceConfig{
		SQLitePath: "./data/arbwatch.db",
	}
	c.Metrics = MetricsConfig{
		Enabled: true,
		Port:    8080,
		Path:    "/metrics",
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
	}
	c.ShutdownTimeout = 10 * time.Second
}

// applyEnvOverrides applies environment variable overrides to configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PRODUCER_BATCH_SIZE"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Producer.BatchSize = n
		}
	}
	if v := os.Getenv("PRODUCER_CSV_PATH"); v != "" {
		c.Producer.CsvPath = v
	}
	if v := os.Getenv("PRODUCER_ON_MALFORMED"); v != "" {
		c.Producer.OnMalformed = strings.ToLower(v)
	}
	if v := os.Getenv("WRITER_REBUILD_LIMIT"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Writer.RebuildLimit = n
		}
	}
	if v := os.Getenv("SEARCHER_HOP_CAP"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n >= 0 {
			c.Searcher.HopCap = n
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Metrics.Port = port
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Persistence.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// validate checks that all required configuration values are present and
// valid.
func (c *Config) validate() error {
	if c.Producer.BatchSize <= 0 {
		return fmt.Errorf("producer.batch_size must be positive")
	}
	if c.Producer.ChannelCapacity <= 0 {
		return fmt.Errorf("producer.channel_capacity must be positive")
	}
	if c.Producer.OnMalformed != "skip" && c.Producer.OnMalformed != "fail" {
		return fmt.Errorf("producer.on_malformed must be \"skip\" or \"fail\"")
	}
	if c.Writer.RebuildLimit <= 0 {
		return fmt.Errorf("writer.rebuild_limit must be positive")
	}
	if c.Searcher.Interval <= 0 {
		return fmt.Errorf("searcher.interval must be positive")
	}
	if c.Searcher.OutputChannelCapacity <= 0 {
		return fmt.Errorf("searcher.output_channel_capacity must be positive")
	}
	if c.Simulator.NodeCount < 2 {
		return fmt.Errorf("simulator.node_count must be at least 2")
	}
	if c.Simulator.EdgeCountPerBatch <= 0 {
		return fmt.Errorf("simulator.edge_count_per_batch must be positive")
	}
	if c.Simulator.RateRange.Max <= c.Simulator.RateRange.Min {
		return fmt.Errorf("simulator.rate_range.max must exceed rate_range.min")
	}
	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be a valid port number")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}
