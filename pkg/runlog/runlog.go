package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pipeline"
)

// Run is one persisted batch run.
type Run struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	Workers   int
	Total     int
	Succeeded int
	Failed    int
}

// Task is one persisted per-pair outcome within a run.
type Task struct {
	RunID   string
	Index   int
	PairID  string
	Status  string
	Elapsed time.Duration
	Message string
}

// RecordRun persists a completed run and all of its task outcomes in
// one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, results []pipeline.TaskResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, ended_at, workers, total, succeeded, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.EndedAt.UTC().Format(time.RFC3339Nano),
		run.Workers, run.Total, run.Succeeded, run.Failed,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, r := range results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_tasks (run_id, task_index, pair_id, status, elapsed_ns, message)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.RunID, r.Index, r.PairID, string(r.Status), int64(r.Elapsed), r.Message,
		); err != nil {
			return fmt.Errorf("insert task %d: %w", r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0
// returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT run_id, started_at, ended_at, workers, total, succeeded, failed
		FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, ended string
		if err := rows.Scan(&r.RunID, &started, &ended, &r.Workers, &r.Total, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if r.EndedAt, err = time.Parse(time.RFC3339Nano, ended); err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTasks returns a run's task outcomes in index order.
func (s *Store) ListTasks(ctx context.Context, runID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, task_index, pair_id, status, elapsed_ns, message
		 FROM run_tasks WHERE run_id = ? ORDER BY task_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []Task
	for rows.Next() {
		var t Task
		var elapsed int64
		var message sql.NullString
		if err := rows.Scan(&t.RunID, &t.Index, &t.PairID, &t.Status, &elapsed, &message); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Elapsed = time.Duration(elapsed)
		t.Message = message.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
