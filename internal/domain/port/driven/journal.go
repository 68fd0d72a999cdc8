package driven

import (
	"context"
	"time"
)

// CheckinRun is one recorded checkin pass.
type CheckinRun struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	ReferenceDate string
	Eligible      int
	Succeeded     int
	Failed        int
	Skipped       int
}

// CheckinOutcome is the recorded result for a single account within a run.
type CheckinOutcome struct {
	ID           string
	RunID        string
	AccountID    string
	Username     string
	SessionOK    bool
	CheckinOK    bool
	BalanceDelta int64
	ErrorReason  string
	RecordedAt   time.Time
}

// RunJournal defines the driven port for the local audit trail of checkin
// passes. Journal failures are soft: orchestration never aborts because a
// journal write failed.
type RunJournal interface {
	RecordRun(ctx context.Context, run CheckinRun) error
	RecordOutcome(ctx context.Context, outcome CheckinOutcome) error
	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]CheckinRun, error)
	// ListOutcomes returns all outcomes recorded for the given run.
	ListOutcomes(ctx context.Context, runID string) ([]CheckinOutcome, error)
}
