// Package journal persists run history: one row per pipeline run,
// one row per stage disposition, one row per external invocation.
// The journal is diagnostic only; resume semantics come exclusively
// from artifact presence on disk, never from journal state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded pipeline run.
type Run struct {
	ID            int64
	TerminalStage string
	Status        string // "running", "completed", "failed"
	Error         string
	StartedAt     time.Time
	FinishedAt    sql.NullTime
}

// StageExecution is one recorded stage disposition within a run.
type StageExecution struct {
	RunID       int64
	Stage       string
	Disposition string // "skipped", "completed", "failed"
	Duration    time.Duration
	Error       string
}

// Invocation is one recorded external command.
type Invocation struct {
	RunID      int64
	Command    string
	ExitCode   int
	Duration   time.Duration
	StderrTail string
}

// Store defines the journal persistence interface.
type Store interface {
	BeginRun(ctx context.Context, terminalStage string) (int64, error)
	FinishRun(ctx context.Context, runErr error) error
	RecordStage(ctx context.Context, stage, disposition string, duration time.Duration, runErr error) error
	RecordInvocation(ctx context.Context, command string, exitCode int, duration time.Duration, stderrTail string) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	StageExecutions(ctx context.Context, runID int64) ([]StageExecution, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	runID int64 // current run, 0 when none active
}

// NewSQLiteStore creates a SQLite-backed journal at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy
// timeout so a watch TUI reading history never wedges a writer.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return initStore(ctx, db)
}

// memStoreSeq distinguishes in-memory databases so separate stores do
// not share state through the process-wide shared cache.
var memStoreSeq atomic.Int64

// NewMemoryStore creates an in-memory journal for testing.
// Uses a shared cache so the pool's connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	name := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memStoreSeq.Add(1))
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}

	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// Foreign keys need an explicit PRAGMA with modernc.org/sqlite.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// One connection for primary queries, one for subqueries.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
