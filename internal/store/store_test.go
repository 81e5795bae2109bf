package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB records Exec statements and drains CopyFrom sources.
type fakeDB struct {
	mu       sync.Mutex
	execs    []string
	execArgs [][]any
	copied   [][]any
	table    pgx.Identifier
	columns  []string
	copyErr  error
	execErr  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.NewCommandTag("OK"), f.execErr
}

func (f *fakeDB) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.table = table
	f.columns = columns
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		f.copied = append(f.copied, vals)
		n++
	}
	return n, src.Err()
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("Exec calls = %d, want 1", len(db.execs))
	}
	for _, table := range []string{ObservationsTable, RunsTable} {
		if !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema does not create %s", table)
		}
	}

	db.execErr = errors.New("permission denied")
	if err := EnsureSchema(context.Background(), db); err == nil {
		t.Error("EnsureSchema() error = nil, want failure")
	}
}

func TestSink_FlushCopiesBufferedRows(t *testing.T) {
	db := &fakeDB{}
	runID := uuid.New()
	sink := NewSink(db, runID, "daily_bars")
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	sink.Notify("CLOSE", ts, "AAPL", 185.64)
	sink.Notify("OPEN", ts, "AAPL", 187.15)

	if got := sink.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}

	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if got := sink.Pending(); got != 0 {
		t.Errorf("Pending() after flush = %d, want 0", got)
	}
	if got := sink.Written(); got != 2 {
		t.Errorf("Written() = %d, want 2", got)
	}
	if len(db.table) != 1 || db.table[0] != ObservationsTable {
		t.Errorf("table = %v, want %s", db.table, ObservationsTable)
	}
	if strings.Join(db.columns, ",") != "run_id,feed,symbol,field,observed_at,value" {
		t.Errorf("columns = %v", db.columns)
	}

	first := db.copied[0]
	if first[0] != runID || first[1] != "daily_bars" || first[2] != "AAPL" || first[3] != "CLOSE" {
		t.Errorf("row[0] = %v", first)
	}
	if got, _ := first[4].(time.Time); !got.Equal(ts) {
		t.Errorf("row[0] observed_at = %v, want %v", first[4], ts)
	}
	if first[5] != 185.64 {
		t.Errorf("row[0] value = %v, want 185.64", first[5])
	}
}

func TestSink_FlushEmptyIsNoop(t *testing.T) {
	db := &fakeDB{copyErr: errors.New("must not be called")}
	sink := NewSink(db, uuid.New(), "f")

	if err := sink.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestSink_FlushFailureKeepsRows(t *testing.T) {
	db := &fakeDB{copyErr: errors.New("connection reset")}
	sink := NewSink(db, uuid.New(), "f")
	sink.Notify("PRICE", time.Now(), "VOD", 1)

	if err := sink.Flush(context.Background()); err == nil {
		t.Fatal("Flush() error = nil, want failure")
	}
	if got := sink.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}

	db.copyErr = nil
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("retry Flush() error = %v", err)
	}
	if got := sink.Written(); got != 1 {
		t.Errorf("Written() = %d, want 1", got)
	}
}

func TestSink_ConcurrentNotify(t *testing.T) {
	sink := NewSink(&fakeDB{}, uuid.New(), "f")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sink.Notify("PRICE", time.Now(), "VOD", float64(j))
			}
		}()
	}
	wg.Wait()

	if got := sink.Pending(); got != 800 {
		t.Errorf("Pending() = %d, want 800", got)
	}
}

func TestInsertRun(t *testing.T) {
	db := &fakeDB{}
	run := Run{
		ID:       uuid.New(),
		Feed:     "intraday_trades",
		Source:   "trades.csv",
		Lines:    10,
		Accepted: 8,
		Invalid:  2,
		Stored:   16,
		Err:      errors.New("line too long"),
	}

	if err := InsertRun(context.Background(), db, run); err != nil {
		t.Fatalf("InsertRun() error = %v", err)
	}

	args := db.execArgs[0]
	if len(args) != 11 {
		t.Fatalf("args = %d, want 11", len(args))
	}
	if args[10] != int64(16) {
		t.Errorf("stored arg = %v, want 16", args[10])
	}
	if args[0] != run.ID || args[1] != "intraday_trades" {
		t.Errorf("args = %v", args)
	}
	if msg, ok := args[7].(*string); !ok || msg == nil || *msg != "line too long" {
		t.Errorf("error arg = %v, want \"line too long\"", args[7])
	}

	run.Err = nil
	if err := InsertRun(context.Background(), db, run); err != nil {
		t.Fatalf("InsertRun() error = %v", err)
	}
	if msg, _ := db.execArgs[1][7].(*string); msg != nil {
		t.Errorf("error arg = %q, want nil", *msg)
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://user:pw@localhost:5432/ticks?sslmode=disable", "ticks"},
		{"postgres://localhost", ""},
		{"://bad", ""},
	}
	for _, tt := range tests {
		if got := DatabaseName(tt.url); got != tt.want {
			t.Errorf("DatabaseName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
