package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BeginRun opens a new run record and makes it current.
// Returns the run ID.
func (s *SQLiteStore) BeginRun(ctx context.Context, terminalStage string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (terminal_stage, status) VALUES (?, 'running')
	`, terminalStage)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()

	return id, nil
}

// FinishRun closes the current run with a final status.
func (s *SQLiteStore) FinishRun(ctx context.Context, runErr error) error {
	s.mu.Lock()
	id := s.runID
	s.runID = 0
	s.mu.Unlock()

	if id == 0 {
		return fmt.Errorf("no active run")
	}

	status := "completed"
	errStr := ""
	if runErr != nil {
		status = "failed"
		errStr = runErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, errStr, id)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", id, err)
	}
	return nil
}

// RecordStage records one stage disposition for the current run.
// Satisfies the scheduler's Journal interface.
func (s *SQLiteStore) RecordStage(ctx context.Context, stage, disposition string, duration time.Duration, runErr error) error {
	s.mu.Lock()
	id := s.runID
	s.mu.Unlock()

	if id == 0 {
		return fmt.Errorf("no active run")
	}

	errStr := ""
	if runErr != nil {
		errStr = runErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_executions (run_id, stage, disposition, duration_ms, error)
		VALUES (?, ?, ?, ?, ?)
	`, id, stage, disposition, duration.Milliseconds(), errStr)
	if err != nil {
		return fmt.Errorf("recording stage %q: %w", stage, err)
	}
	return nil
}

// RecordInvocation records one external command for the current run.
func (s *SQLiteStore) RecordInvocation(ctx context.Context, command string, exitCode int, duration time.Duration, stderrTail string) error {
	s.mu.Lock()
	id := s.runID
	s.mu.Unlock()

	if id == 0 {
		return fmt.Errorf("no active run")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (run_id, command, exit_code, duration_ms, stderr_tail)
		VALUES (?, ?, ?, ?, ?)
	`, id, command, exitCode, duration.Milliseconds(), stderrTail)
	if err != nil {
		return fmt.Errorf("recording invocation: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, terminal_stage, status, COALESCE(error, ''), started_at, finished_at
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.TerminalStage, &r.Status, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.FinishedAt = finished
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// StageExecutions returns the stage dispositions of one run, in
// recording order.
func (s *SQLiteStore) StageExecutions(ctx context.Context, runID int64) ([]StageExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, stage, disposition, duration_ms, COALESCE(error, '')
		FROM stage_executions WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying stage executions: %w", err)
	}
	defer rows.Close()

	var execs []StageExecution
	for rows.Next() {
		var e StageExecution
		var durationMS int64
		if err := rows.Scan(&e.RunID, &e.Stage, &e.Disposition, &durationMS, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning stage execution: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// Invocations returns the external commands recorded for one run.
func (s *SQLiteStore) Invocations(ctx context.Context, runID int64) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, command, exit_code, duration_ms, COALESCE(stderr_tail, '')
		FROM invocations WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer rows.Close()

	var invs []Invocation
	for rows.Next() {
		var inv Invocation
		var durationMS int64
		if err := rows.Scan(&inv.RunID, &inv.Command, &inv.ExitCode, &durationMS, &inv.StderrTail); err != nil {
			return nil, fmt.Errorf("scanning invocation: %w", err)
		}
		inv.Duration = time.Duration(durationMS) * time.Millisecond
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}
