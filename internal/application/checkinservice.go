// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mstolpe/quotafarm/internal/domain/model"
	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
	"github.com/mstolpe/quotafarm/internal/timing"
)

// CheckinOptions tunes a CheckinService. Delays are deliberately multi-second
// in production so sequential account processing stays under the target
// site's abuse-detection thresholds; tests shrink them to near zero.
type CheckinOptions struct {
	Limit             int           // Max eligible accounts per pass; <= 0 = unbounded.
	AccountDelayMin   time.Duration // Randomized pause between accounts.
	AccountDelayMax   time.Duration
	Interval          time.Duration  // Daemon-mode pass interval.
	ReferenceLocation *time.Location // Timezone defining the checkin day boundary.
	DryRun            bool           // Fetch and log eligibility without driving sessions.
}

// CheckinService orchestrates one checkin pass: fetch eligible accounts from
// the ledger, acquire a session per account strictly sequentially, and fold
// results back into the ledger as field updates plus atomic balance deltas.
type CheckinService struct {
	ledger   driven.Ledger
	acquirer driven.SessionAcquirer
	journal  driven.RunJournal
	opts     CheckinOptions
}

// NewCheckinService creates a CheckinService. journal may be nil, in which
// case outcomes are only logged.
func NewCheckinService(ledger driven.Ledger, acquirer driven.SessionAcquirer, journal driven.RunJournal, opts CheckinOptions) *CheckinService {
	if opts.ReferenceLocation == nil {
		opts.ReferenceLocation = time.UTC
	}
	return &CheckinService{
		ledger:   ledger,
		acquirer: acquirer,
		journal:  journal,
		opts:     opts,
	}
}

// RunSummary aggregates one checkin pass.
type RunSummary struct {
	RunID         string
	ReferenceDate string
	Eligible      int
	Succeeded     int
	Failed        int
	Skipped       int
}

// Start runs checkin passes on the configured interval until the context is
// canceled. An immediate pass runs first.
func (s *CheckinService) Start(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		slog.Error("initial checkin pass failed", "error", err)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("checkin service stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("checkin pass failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single checkin pass over all currently eligible accounts.
// Per-account failures are soft: they are journaled and logged, and the pass
// moves on to the next account.
func (s *CheckinService) RunOnce(ctx context.Context) (*RunSummary, error) {
	start := time.Now()

	elig, err := s.ledger.FetchEligibleAccounts(ctx, s.opts.Limit)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		RunID:         uuid.NewString(),
		ReferenceDate: elig.ReferenceDate,
		Eligible:      len(elig.Accounts),
	}
	slog.Info("checkin pass started",
		"run_id", summary.RunID,
		"eligible", summary.Eligible,
		"reference_date", elig.ReferenceDate,
		"as_of", elig.AsOfTime,
	)

	if s.opts.DryRun {
		for _, acct := range elig.Accounts {
			slog.Info("dry run candidate", "account", acct.ID, "username", acct.Username, "balance", acct.Balance)
		}
		return summary, nil
	}

	for i, acct := range elig.Accounts {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		outcome := s.processAccount(ctx, acct, elig.AsOfTime)
		switch {
		case outcome.skipped:
			summary.Skipped++
		case outcome.ErrorReason != "":
			summary.Failed++
		default:
			summary.Succeeded++
		}
		s.journalOutcome(ctx, summary.RunID, outcome)

		// Human-like pause between accounts; skip after the last one.
		if i < len(elig.Accounts)-1 {
			if err := timing.Sleep(ctx, timing.HumanDelay(s.opts.AccountDelayMin, s.opts.AccountDelayMax)); err != nil {
				return summary, err
			}
		}
	}

	s.journalRun(ctx, driven.CheckinRun{
		ID:            summary.RunID,
		StartedAt:     start,
		FinishedAt:    time.Now(),
		ReferenceDate: summary.ReferenceDate,
		Eligible:      summary.Eligible,
		Succeeded:     summary.Succeeded,
		Failed:        summary.Failed,
		Skipped:       summary.Skipped,
	})

	slog.Info("checkin pass complete",
		"run_id", summary.RunID,
		"eligible", summary.Eligible,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return summary, nil
}

type accountOutcome struct {
	driven.CheckinOutcome
	skipped bool
}

// processAccount drives one account through session acquisition and folds the
// result into the ledger. Balance only moves as a signed delta relative to the
// balance known at eligibility time; the snapshot's absolute value is never
// written back directly, so concurrent externally-driven balance changes are
// never clobbered.
func (s *CheckinService) processAccount(ctx context.Context, acct model.Account, asOf time.Time) accountOutcome {
	outcome := accountOutcome{CheckinOutcome: driven.CheckinOutcome{
		ID:        uuid.NewString(),
		AccountID: acct.ID,
		Username:  acct.Username,
	}}

	// The ledger already filtered on the reference day, but the pass may have
	// been running long enough to cross the boundary, or overlap a concurrent
	// scheduler. Re-check against the server-observed time before spending a
	// session.
	if !acct.EligibleForCheckin(asOf, s.opts.ReferenceLocation) {
		slog.Info("account no longer eligible, skipping", "account", acct.ID)
		outcome.skipped = true
		return outcome
	}

	res, err := s.acquirer.AcquireSession(ctx, acct.Username, acct.Password)
	if err != nil {
		slog.Error("session acquisition failed", "account", acct.ID, "error", err)
		outcome.ErrorReason = err.Error()
		return outcome
	}
	outcome.SessionOK = true
	outcome.CheckinOK = res.CheckinOK

	if res.CheckinErr != nil {
		// Soft failure: the session is still valid and worth persisting.
		slog.Warn("checkin failed within acquisition", "account", acct.ID, "error", res.CheckinErr)
	}

	fields := map[string]any{
		"session":           res.Session,
		"sessionExpireTime": res.SessionExpireTime,
	}
	if res.CheckinOK {
		fields["checkinDate"] = asOf.UnixMilli()
	}
	if n, err := s.ledger.UpdateAccountFields(ctx, acct.ID, fields); err != nil {
		slog.Error("account field update failed", "account", acct.ID, "error", err)
		outcome.ErrorReason = err.Error()
	} else if n == 0 {
		slog.Warn("account field update matched no records", "account", acct.ID)
	}

	if delta := res.Snapshot.Balance - acct.Balance; delta != 0 {
		change, err := s.ledger.IncrementBalance(ctx, acct.ID, delta)
		if err != nil {
			if errors.Is(err, driven.ErrInsufficientBalance) {
				slog.Error("balance delta rejected by ledger", "account", acct.ID, "delta", delta, "error", err)
			} else {
				slog.Error("balance delta failed", "account", acct.ID, "delta", delta, "error", err)
			}
			outcome.ErrorReason = err.Error()
			return outcome
		}
		outcome.BalanceDelta = delta
		slog.Info("balance updated",
			"account", acct.ID,
			"old_balance", change.OldBalance,
			"new_balance", change.NewBalance,
			"delta", delta,
		)
	}

	return outcome
}

func (s *CheckinService) journalOutcome(ctx context.Context, runID string, outcome accountOutcome) {
	if s.journal == nil || outcome.skipped {
		return
	}
	rec := outcome.CheckinOutcome
	rec.RunID = runID
	rec.RecordedAt = time.Now()
	if err := s.journal.RecordOutcome(ctx, rec); err != nil {
		slog.Warn("journal outcome write failed", "account", rec.AccountID, "error", err)
	}
}

func (s *CheckinService) journalRun(ctx context.Context, run driven.CheckinRun) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordRun(ctx, run); err != nil {
		slog.Warn("journal run write failed", "run_id", run.ID, "error", err)
	}
}
