package driven

import (
	"context"
	"errors"
	"time"

	"github.com/mstolpe/quotafarm/internal/domain/model"
)

// ErrInsufficientBalance is returned by IncrementBalance when a debit's
// magnitude exceeds the account's current balance. The ledger rejects the
// whole operation and leaves the balance unchanged.
var ErrInsufficientBalance = errors.New("insufficient balance")

// EligibleAccounts is the ledger's answer to an eligibility query. AsOfTime
// and ReferenceDate are server-observed so downstream logging and the local
// day-boundary guard share one time reference regardless of caller clock skew.
type EligibleAccounts struct {
	Accounts      []model.Account
	AsOfTime      time.Time
	ReferenceDate string // Calendar day in the service's reference timezone, "2006-01-02".
}

// BalanceChange is the ledger's authoritative before/after state for an
// atomic balance delta.
type BalanceChange struct {
	OldBalance int64
	NewBalance int64
}

// Ledger defines the driven port toward the remote system of record for
// accounts, balances, and password change requests. The ledger owns all
// persistence; this core only issues requests against its contract.
type Ledger interface {
	// FetchEligibleAccounts returns accounts due for a checkin pass: unsold,
	// session missing or expired, owning user active and unexpired, and not
	// yet checked in on the current reference-timezone day. limit <= 0 means
	// unbounded.
	FetchEligibleAccounts(ctx context.Context, limit int) (*EligibleAccounts, error)

	// IncrementBalance applies a signed delta to an account balance as a
	// single atomic storage-side operation. A debit exceeding the current
	// balance fails with ErrInsufficientBalance and no side effects.
	IncrementBalance(ctx context.Context, accountID string, amount int64) (*BalanceChange, error)

	// UpdateAccountFields patches the given fields on an account and returns
	// the number of records updated. Balance must never be patched through
	// this method; it only moves via IncrementBalance.
	UpdateAccountFields(ctx context.Context, accountID string, fields map[string]any) (int, error)

	// UpdatePasswordChangeRequest uploads the structured outcome of one
	// rotation attempt. The ledger increments the request's error count when
	// the report is flagged as an API error.
	UpdatePasswordChangeRequest(ctx context.Context, report model.RotationReport) error
}
