// Package persistence stores the detection run ledger (reported cycles,
// rebuild history, and per-invocation run metadata) in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store provides SQLite-backed persistence for the run ledger.
type Store struct {
	db *sql.DB
}

// CycleRecord is a single detected, reported cycle.
type CycleRecord struct {
	ID            int64
	DetectedAt    time.Time
	NodePath      []int
	Rates         []float64
	LogRateSum    float64
	ProfitFactor  float64
	SourceTag     string
}

// RebuildRecord is a single committed CSR rebuild.
type RebuildRecord struct {
	ID             int64
	RebuiltAt      time.Time
	NodeCount      int
	EdgeCount      int
	PendingApplied int
	DurationMS     float64
}

// RunRecord is one process invocation.
type RunRecord struct {
	ID            int64
	Mode          string
	ConfigSnapshot string
	StartedAt     time.Time
	EndedAt       sql.NullTime
}

// NewStore opens (creating if necessary) the SQLite database at dbPath and
// runs migrations.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mode TEXT NOT NULL,
			config_snapshot TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS rebuilds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rebuilt_at DATETIME NOT NULL,
			node_count INTEGER NOT NULL,
			edge_count INTEGER NOT NULL,
			pending_applied INTEGER NOT NULL,
			duration_ms REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			detected_at DATETIME NOT NULL,
			node_path TEXT NOT NULL,
			rates TEXT NOT NULL,
			log_rate_sum REAL NOT NULL,
			profit_factor REAL NOT NULL,
			source_tag TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_detected_at ON cycles(detected_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rebuilds_rebuilt_at ON rebuilds(rebuilt_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	log.Info().Msg("database migrations completed")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the start of a process invocation and returns its id.
func (s *Store) StartRun(ctx context.Context, mode string, configSnapshot interface{}) (int64, error) {
	blob, err := json.Marshal(configSnapshot)
	if err != nil {
		return 0, fmt.Errorf("marshaling config snapshot: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (mode, config_snapshot, started_at) VALUES (?, ?, ?)`,
		mode, string(blob), time.Now())
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// EndRun marks a run as finished.
func (s *Store) EndRun(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE id = ?`, time.Now(), runID)
	return err
}

// RecordRebuild persists a completed rebuild. Satisfies writer.RebuildRecorder
// via the adapter in cmd/watchdog.
func (s *Store) RecordRebuild(ctx context.Context, nodeCount, edgeCount, pendingApplied int, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rebuilds (rebuilt_at, node_count, edge_count, pending_applied, duration_ms)
		VALUES (?, ?, ?, ?, ?)`,
		time.Now(), nodeCount, edgeCount, pendingApplied, float64(duration.Microseconds())/1000.0)
	return err
}

// RecordCycle persists a reported cycle.
func (s *Store) RecordCycle(ctx context.Context, nodePath []int, rates []float64, logRateSum, profitFactor float64, sourceTag string) error {
	pathBlob, err := json.Marshal(nodePath)
	if err != nil {
		return fmt.Errorf("marshaling node path: %w", err)
	}
	ratesBlob, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("marshaling rates: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cycles (detected_at, node_path, rates, log_rate_sum, profit_factor, source_tag)
		VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now(), string(pathBlob), string(ratesBlob), logRateSum, profitFactor, sourceTag)
	return err
}

// RecentCycles returns the most recently detected cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, detected_at, node_path, rates, log_rate_sum, profit_factor, source_tag
		FROM cycles ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var c CycleRecord
		var pathBlob, ratesBlob string
		if err := rows.Scan(&c.ID, &c.DetectedAt, &pathBlob, &ratesBlob, &c.LogRateSum, &c.ProfitFactor, &c.SourceTag); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(pathBlob), &c.NodePath); err != nil {
			return nil, fmt.Errorf("unmarshaling node_path: %w", err)
		}
		if err := json.Unmarshal([]byte(ratesBlob), &c.Rates); err != nil {
			return nil, fmt.Errorf("unmarshaling rates: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RebuildCount returns the total number of rebuilds persisted so far.
func (s *Store) RebuildCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rebuilds").Scan(&count)
	return count, err
}
