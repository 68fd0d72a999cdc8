package model

import (
	"errors"
	"time"
)

// RotationStatus represents the lifecycle state of a password change request.
// A request never leaves completed or error; further attempts need a fresh
// request.
type RotationStatus string

const (
	RotationNotStarted RotationStatus = "not_started"
	RotationInProgress RotationStatus = "in_progress"
	RotationCompleted  RotationStatus = "completed"
	RotationError      RotationStatus = "error"
)

// PasswordChangeRequest is one pending username/password rotation, created
// externally and carried through the rotation orchestrator exactly once.
// ErrorCount is owned by the ledger and only ever increments on failures the
// remote API authoritatively rejected; it arrives here as scheduling input for
// the conflict-retry policy.
type PasswordChangeRequest struct {
	ID          string         `json:"id"`
	OldUsername string         `json:"oldUsername"`
	OldPassword string         `json:"oldPassword"`
	NewUsername string         `json:"newUsername"` // Empty = keep current username.
	NewPassword string         `json:"newPassword"` // Empty = keep current password.
	Status      RotationStatus `json:"status"`
	ErrorCount  int            `json:"errorCount"`
	CompletedAt int64          `json:"completedAt"` // Unix ms; zero until completed.
}

var (
	ErrNoCredentialChange = errors.New("password change request carries neither a new username nor a new password")
	ErrMissingOldLogin    = errors.New("password change request is missing the old username or password")
)

// Validate checks the request before any network or browser action. At least
// one of NewUsername/NewPassword must be present, and the old login pair must
// be complete so the rotation session can authenticate.
func (r PasswordChangeRequest) Validate() error {
	if r.OldUsername == "" || r.OldPassword == "" {
		return ErrMissingOldLogin
	}
	if r.NewUsername == "" && r.NewPassword == "" {
		return ErrNoCredentialChange
	}
	return nil
}

// RotationReport is the structured outcome uploaded to the ledger when a
// rotation request finishes, on every path. IsAPIError marks failures the
// remote API rejected authoritatively; only those escalate the request's
// error count on the ledger side.
type RotationReport struct {
	RequestID   string
	Status      RotationStatus
	ErrorReason string
	IsAPIError  bool
	NewUsername string        // Verified post-change username, when completed.
	Snapshot    *UserSnapshot // Authoritative post-change account state, when completed.
	CompletedAt time.Time
}
