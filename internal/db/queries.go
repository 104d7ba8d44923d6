package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lucasnoah/prbuild/internal/analytics"
	"github.com/lucasnoah/prbuild/internal/pipeline"
)

// RunRow is a row in the runs table.
type RunRow struct {
	ID         int64
	RunID      string
	Pipeline   string
	Mode       string
	PRNumber   string
	BranchRef  string
	SHA        string
	Outcome    string
	FailedStep string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ListOpts filters ListRuns.
type ListOpts struct {
	PRNumber string
	Branch   string
	Limit    int
}

// RecordRun inserts a finished run and its steps in one transaction.
func (d *DB) RecordRun(ctx context.Context, rec *pipeline.RunRecord) (int64, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO runs (run_id, pipeline, mode, pr_number, branch_ref, sha, outcome, failed_step, error, started_at, finished_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)
		 RETURNING id`,
		rec.ID, rec.Pipeline, string(rec.Plan.Mode), rec.Plan.PRNumber, rec.Plan.BranchRef, rec.SHA,
		string(rec.Outcome), rec.FailedStep, rec.Error, rec.StartedAt, rec.FinishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for i, s := range rec.Steps {
		batch.Queue(
			`INSERT INTO run_steps (run_id, position, name, passed, exit_code, duration_ms, summary) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, i, s.Name, s.Passed, s.ExitCode, s.DurationMs, s.Summary,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert run steps: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns recent runs, newest first.
func (d *DB) ListRuns(ctx context.Context, opts ListOpts) ([]RunRow, error) {
	var where []string
	var args []any
	if opts.PRNumber != "" {
		args = append(args, opts.PRNumber)
		where = append(where, fmt.Sprintf("pr_number = $%d", len(args)))
	}
	if opts.Branch != "" {
		args = append(args, opts.Branch)
		where = append(where, fmt.Sprintf("branch_ref = $%d", len(args)))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	q := `SELECT id, run_id, pipeline, mode, COALESCE(pr_number, ''), COALESCE(branch_ref, ''), COALESCE(sha, ''),
	             outcome, COALESCE(failed_step, ''), COALESCE(error, ''), started_at, finished_at
	      FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY started_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunRow, error) {
		var r RunRow
		err := row.Scan(&r.ID, &r.RunID, &r.Pipeline, &r.Mode, &r.PRNumber, &r.BranchRef, &r.SHA,
			&r.Outcome, &r.FailedStep, &r.Error, &r.StartedAt, &r.FinishedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}

// StepsForRun returns the step rows of a run in execution order.
func (d *DB) StepsForRun(ctx context.Context, id int64) ([]pipeline.StepRecord, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT name, passed, COALESCE(exit_code, 0), COALESCE(duration_ms, 0), COALESCE(summary, '')
		 FROM run_steps WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	steps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.StepRecord, error) {
		var s pipeline.StepRecord
		err := row.Scan(&s.Name, &s.Passed, &s.ExitCode, &s.DurationMs, &s.Summary)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan run steps: %w", err)
	}
	return steps, nil
}

// StepSamples returns every recorded step execution of runs started at or
// after since.
func (d *DB) StepSamples(ctx context.Context, since time.Time) ([]analytics.StepSample, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT s.name, s.passed, COALESCE(s.duration_ms, 0)
		 FROM run_steps s JOIN runs r ON r.id = s.run_id
		 WHERE r.started_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("query step samples: %w", err)
	}
	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.StepSample, error) {
		var s analytics.StepSample
		err := row.Scan(&s.Step, &s.Passed, &s.DurationMs)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan step samples: %w", err)
	}
	return samples, nil
}

// RunSamples returns the outcome and start time of runs started at or after
// since.
func (d *DB) RunSamples(ctx context.Context, since time.Time) ([]analytics.RunSample, error) {
	rows, err := d.pool.Query(ctx, `SELECT outcome, started_at FROM runs WHERE started_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("query run samples: %w", err)
	}
	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.RunSample, error) {
		var s analytics.RunSample
		err := row.Scan(&s.Outcome, &s.StartedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan run samples: %w", err)
	}
	return samples, nil
}
