package application_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstolpe/quotafarm/internal/application"
	"github.com/mstolpe/quotafarm/internal/domain/model"
	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
)

// --- Mock implementations ---

type incrementCall struct {
	AccountID string
	Amount    int64
}

type fieldUpdateCall struct {
	AccountID string
	Fields    map[string]any
}

type mockLedger struct {
	elig    *driven.EligibleAccounts
	eligErr error

	increments   []incrementCall
	incrementErr error

	fieldUpdates   []fieldUpdateCall
	fieldUpdateErr error

	reports []model.RotationReport
}

func (m *mockLedger) FetchEligibleAccounts(_ context.Context, _ int) (*driven.EligibleAccounts, error) {
	if m.eligErr != nil {
		return nil, m.eligErr
	}
	return m.elig, nil
}

func (m *mockLedger) IncrementBalance(_ context.Context, accountID string, amount int64) (*driven.BalanceChange, error) {
	if m.incrementErr != nil {
		return nil, m.incrementErr
	}
	m.increments = append(m.increments, incrementCall{AccountID: accountID, Amount: amount})
	return &driven.BalanceChange{OldBalance: 0, NewBalance: amount}, nil
}

func (m *mockLedger) UpdateAccountFields(_ context.Context, accountID string, fields map[string]any) (int, error) {
	if m.fieldUpdateErr != nil {
		return 0, m.fieldUpdateErr
	}
	m.fieldUpdates = append(m.fieldUpdates, fieldUpdateCall{AccountID: accountID, Fields: fields})
	return 1, nil
}

func (m *mockLedger) UpdatePasswordChangeRequest(_ context.Context, report model.RotationReport) error {
	m.reports = append(m.reports, report)
	return nil
}

type mockAcquirer struct {
	acquire  func(ctx context.Context, username, password string) (*model.AcquireResult, error)
	acquired []string
}

func (m *mockAcquirer) AcquireSession(ctx context.Context, username, password string) (*model.AcquireResult, error) {
	m.acquired = append(m.acquired, username)
	return m.acquire(ctx, username, password)
}

type mockJournal struct {
	runs     []driven.CheckinRun
	outcomes []driven.CheckinOutcome
	writeErr error
}

func (m *mockJournal) RecordRun(_ context.Context, run driven.CheckinRun) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockJournal) RecordOutcome(_ context.Context, o driven.CheckinOutcome) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *mockJournal) ListRuns(_ context.Context, _ int) ([]driven.CheckinRun, error) {
	return m.runs, nil
}

func (m *mockJournal) ListOutcomes(_ context.Context, _ string) ([]driven.CheckinOutcome, error) {
	return m.outcomes, nil
}

// --- Helpers ---

var asOf = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

func eligWith(accounts ...model.Account) *driven.EligibleAccounts {
	return &driven.EligibleAccounts{
		Accounts:      accounts,
		AsOfTime:      asOf,
		ReferenceDate: "2026-08-30",
	}
}

func newService(ledger *mockLedger, acquirer *mockAcquirer, journal *mockJournal) *application.CheckinService {
	// Avoid wrapping a typed-nil *mockJournal in the interface: the service's
	// nil check only recognizes a nil interface value.
	var j driven.RunJournal
	if journal != nil {
		j = journal
	}
	return application.NewCheckinService(ledger, acquirer, j, application.CheckinOptions{
		ReferenceLocation: time.UTC,
	})
}

func okResult(balance int64) *model.AcquireResult {
	return &model.AcquireResult{
		Session:           "tok",
		SessionExpireTime: asOf.Add(24 * time.Hour).UnixMilli(),
		UserID:            "u1",
		Snapshot:          model.UserSnapshot{UserID: "u1", Balance: balance},
		CheckinOK:         true,
	}
}

// --- Tests ---

func TestRunOnce_AppliesBalanceDelta(t *testing.T) {
	ledger := &mockLedger{elig: eligWith(model.Account{ID: "a1", Username: "alice", Balance: 100})}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		return okResult(150), nil
	}}
	journal := &mockJournal{}

	summary, err := newService(ledger, acquirer, journal).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, summary.Failed)

	// Balance moves as the signed delta against the balance known at
	// eligibility time, never as an absolute overwrite.
	require.Len(t, ledger.increments, 1)
	assert.Equal(t, incrementCall{AccountID: "a1", Amount: 50}, ledger.increments[0])

	require.Len(t, ledger.fieldUpdates, 1)
	fields := ledger.fieldUpdates[0].Fields
	assert.Equal(t, "tok", fields["session"])
	assert.Equal(t, asOf.UnixMilli(), fields["checkinDate"])

	require.Len(t, journal.outcomes, 1)
	assert.Equal(t, int64(50), journal.outcomes[0].BalanceDelta)
	assert.True(t, journal.outcomes[0].CheckinOK)
	require.Len(t, journal.runs, 1)
	assert.Equal(t, "2026-08-30", journal.runs[0].ReferenceDate)
}

func TestRunOnce_NoDeltaNoIncrement(t *testing.T) {
	ledger := &mockLedger{elig: eligWith(model.Account{ID: "a1", Username: "alice", Balance: 100})}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		return okResult(100), nil
	}}

	_, err := newService(ledger, acquirer, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ledger.increments)
}

func TestRunOnce_CheckinSoftFailureStillPersistsSession(t *testing.T) {
	ledger := &mockLedger{elig: eligWith(model.Account{ID: "a1", Username: "alice", Balance: 100})}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		res := okResult(100)
		res.CheckinOK = false
		res.CheckinErr = errors.New("checkin window closed")
		return res, nil
	}}
	journal := &mockJournal{}

	summary, err := newService(ledger, acquirer, journal).RunOnce(context.Background())
	require.NoError(t, err)

	// Session acquired, checkin failed: still a successful unit of work.
	assert.Equal(t, 1, summary.Succeeded)

	require.Len(t, ledger.fieldUpdates, 1)
	fields := ledger.fieldUpdates[0].Fields
	assert.Equal(t, "tok", fields["session"])
	assert.NotContains(t, fields, "checkinDate")

	require.Len(t, journal.outcomes, 1)
	assert.True(t, journal.outcomes[0].SessionOK)
	assert.False(t, journal.outcomes[0].CheckinOK)
}

func TestRunOnce_AcquisitionFailureContinues(t *testing.T) {
	ledger := &mockLedger{elig: eligWith(
		model.Account{ID: "a1", Username: "alice", Balance: 100},
		model.Account{ID: "a2", Username: "bob", Balance: 10},
	)}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, username, _ string) (*model.AcquireResult, error) {
		if username == "alice" {
			return nil, errors.New("login blocked")
		}
		return okResult(20), nil
	}}

	summary, err := newService(ledger, acquirer, nil).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []string{"alice", "bob"}, acquirer.acquired)

	// No ledger writes for the failed account.
	require.Len(t, ledger.fieldUpdates, 1)
	assert.Equal(t, "a2", ledger.fieldUpdates[0].AccountID)
}

func TestRunOnce_InsufficientBalanceSurfaces(t *testing.T) {
	ledger := &mockLedger{
		elig:         eligWith(model.Account{ID: "b1", Username: "bob", Balance: 10}),
		incrementErr: fmt.Errorf("balance 10 cannot cover delta -20: %w", driven.ErrInsufficientBalance),
	}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		return okResult(-10), nil
	}}
	journal := &mockJournal{}

	summary, err := newService(ledger, acquirer, journal).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	require.Len(t, journal.outcomes, 1)
	assert.Contains(t, journal.outcomes[0].ErrorReason, "insufficient balance")
}

func TestRunOnce_SkipsAccountCheckedInToday(t *testing.T) {
	ledger := &mockLedger{elig: eligWith(model.Account{
		ID:          "a1",
		Username:    "alice",
		CheckinDate: asOf.Add(-time.Hour).UnixMilli(),
	})}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		t.Fatal("acquirer must not be called for an ineligible account")
		return nil, nil
	}}

	summary, err := newService(ledger, acquirer, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, acquirer.acquired)
}

func TestRunOnce_DryRunDrivesNoSessions(t *testing.T) {
	ledger := &mockLedger{elig: eligWith(model.Account{ID: "a1", Username: "alice"})}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		t.Fatal("acquirer must not be called in dry-run mode")
		return nil, nil
	}}

	svc := application.NewCheckinService(ledger, acquirer, nil, application.CheckinOptions{
		ReferenceLocation: time.UTC,
		DryRun:            true,
	})
	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Eligible)
	assert.Empty(t, acquirer.acquired)
}

func TestRunOnce_JournalFailureIsSoft(t *testing.T) {
	ledger := &mockLedger{elig: eligWith(model.Account{ID: "a1", Username: "alice", Balance: 0})}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		return okResult(0), nil
	}}
	journal := &mockJournal{writeErr: errors.New("disk full")}

	summary, err := newService(ledger, acquirer, journal).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunOnce_EligibilityFetchFailure(t *testing.T) {
	ledger := &mockLedger{eligErr: errors.New("ledger unreachable")}
	acquirer := &mockAcquirer{acquire: func(_ context.Context, _, _ string) (*model.AcquireResult, error) {
		return okResult(0), nil
	}}

	_, err := newService(ledger, acquirer, nil).RunOnce(context.Background())
	assert.ErrorContains(t, err, "ledger unreachable")
	assert.Empty(t, acquirer.acquired)
}
