// Package store persists accepted observations and ingest run summaries to
// PostgreSQL.
//
// A Sink is registered on a line parser as a listener. It buffers one row per
// notification and writes the buffer with a single COPY when flushed, so a
// pipeline run issues one round trip per flush interval rather than one per
// field.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/tickfeed/internal/core"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// ObservationsTable receives one row per accepted field.
const ObservationsTable = "observations"

// RunsTable receives one row per finished ingest run.
const RunsTable = "ingest_runs"

var observationColumns = []string{"run_id", "feed", "symbol", "field", "observed_at", "value"}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id          UUID PRIMARY KEY,
	feed        TEXT NOT NULL,
	source      TEXT NOT NULL,
	lines       INTEGER NOT NULL,
	accepted    INTEGER NOT NULL,
	invalid     INTEGER NOT NULL,
	rejected    INTEGER NOT NULL,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	stored      BIGINT NOT NULL DEFAULT 0
);

ALTER TABLE ingest_runs ADD COLUMN IF NOT EXISTS stored BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS observations (
	run_id      UUID NOT NULL,
	feed        TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	field       TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	value       DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS observations_symbol_time_idx
	ON observations (feed, symbol, observed_at);
`

// EnsureSchema creates the store tables if they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Observation is one buffered row.
type Observation struct {
	RunID      uuid.UUID
	Feed       string
	Symbol     string
	Field      core.Field
	ObservedAt time.Time
	Value      float64
}

// Sink buffers observations for one run. It is safe for concurrent use, so a
// single Sink may be shared by the parsers of several sources.
type Sink struct {
	db    DB
	runID uuid.UUID
	feed  string

	mu      sync.Mutex
	pending []Observation
	written int64
}

// NewSink returns a sink tagging every row with runID and feed.
func NewSink(db DB, runID uuid.UUID, feed string) *Sink {
	return &Sink{db: db, runID: runID, feed: feed}
}

// RunID returns the run identifier stamped on every row.
func (s *Sink) RunID() uuid.UUID { return s.runID }

// Notify buffers one observation.
func (s *Sink) Notify(field core.Field, ts time.Time, symbol string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, Observation{
		RunID:      s.runID,
		Feed:       s.feed,
		Symbol:     symbol,
		Field:      field,
		ObservedAt: ts,
		Value:      value,
	})
}

// Flush writes the buffered observations. On failure the rows stay buffered
// and the next Flush retries them.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	rows := make([][]any, len(s.pending))
	for i, o := range s.pending {
		rows[i] = []any{o.RunID, o.Feed, o.Symbol, string(o.Field), o.ObservedAt, o.Value}
	}

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{ObservationsTable}, observationColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy %d observations: %w", len(rows), err)
	}

	s.written += n
	s.pending = s.pending[:0]
	return nil
}

// Pending returns the number of buffered rows.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Written returns the number of rows copied so far.
func (s *Sink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Run is the persisted summary of one ingest run.
type Run struct {
	ID         uuid.UUID
	Feed       string
	Source     string
	Lines      int
	Accepted   int
	Invalid    int
	Rejected   int
	Stored     int64 // observations actually written
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// InsertRun records a finished run.
func InsertRun(ctx context.Context, db DB, run Run) error {
	var errText *string
	if run.Err != nil {
		msg := run.Err.Error()
		errText = &msg
	}

	_, err := db.Exec(ctx, `
		INSERT INTO ingest_runs
			(id, feed, source, lines, accepted, invalid, rejected, error, started_at, finished_at, stored)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Feed, run.Source, run.Lines, run.Accepted, run.Invalid, run.Rejected,
		errText, run.StartedAt, run.FinishedAt, run.Stored,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}
