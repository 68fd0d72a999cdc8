package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunJournal = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunJournal port.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// RecordRun stores one completed checkin pass.
func (r *RunRepo) RecordRun(ctx context.Context, run driven.CheckinRun) error {
	const query = `
		INSERT INTO checkin_runs (id, started_at, finished_at, reference_date, eligible, succeeded, failed, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.ReferenceDate,
		run.Eligible,
		run.Succeeded,
		run.Failed,
		run.Skipped,
	)
	if err != nil {
		return fmt.Errorf("record run %q: %w", run.ID, err)
	}
	return nil
}

// RecordOutcome stores one per-account outcome.
func (r *RunRepo) RecordOutcome(ctx context.Context, o driven.CheckinOutcome) error {
	const query = `
		INSERT INTO checkin_outcomes (id, run_id, account_id, username, session_ok, checkin_ok, balance_delta, error_reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query,
		o.ID,
		o.RunID,
		o.AccountID,
		o.Username,
		o.SessionOK,
		o.CheckinOK,
		o.BalanceDelta,
		o.ErrorReason,
		o.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record outcome for account %q: %w", o.AccountID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]driven.CheckinRun, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, started_at, finished_at, reference_date, eligible, succeeded, failed, skipped
		FROM checkin_runs ORDER BY started_at DESC LIMIT ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []driven.CheckinRun
	for rows.Next() {
		var run driven.CheckinRun
		var started, finished string
		if err := rows.Scan(&run.ID, &started, &finished, &run.ReferenceDate, &run.Eligible, &run.Succeeded, &run.Failed, &run.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at for run %q: %w", run.ID, err)
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parse finished_at for run %q: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ListOutcomes returns all outcomes recorded for the given run, in insertion
// order.
func (r *RunRepo) ListOutcomes(ctx context.Context, runID string) ([]driven.CheckinOutcome, error) {
	const query = `
		SELECT id, run_id, account_id, username, session_ok, checkin_ok, balance_delta, error_reason, recorded_at
		FROM checkin_outcomes WHERE run_id = ? ORDER BY recorded_at`
	rows, err := r.db.Reader.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes for run %q: %w", runID, err)
	}
	defer rows.Close()

	var outcomes []driven.CheckinOutcome
	for rows.Next() {
		var o driven.CheckinOutcome
		var recorded string
		if err := rows.Scan(&o.ID, &o.RunID, &o.AccountID, &o.Username, &o.SessionOK, &o.CheckinOK, &o.BalanceDelta, &o.ErrorReason, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if o.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("parse recorded_at for outcome %q: %w", o.ID, err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}

	return outcomes, nil
}

// parseTime parses the RFC3339 timestamps this package writes.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
