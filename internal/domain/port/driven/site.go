package driven

import (
	"context"
	"errors"

	"github.com/mstolpe/quotafarm/internal/domain/model"
)

// ErrNoSession is returned by AcquireSession when the login flow completed at
// the transport level but produced no usable session token.
var ErrNoSession = errors.New("no session token produced by login")

// SessionAcquirer defines the driven port for obtaining an authenticated
// session on the target site by driving its scripted login flow. One isolated
// browsing session is spawned and torn down per call; no retry happens inside.
type SessionAcquirer interface {
	// AcquireSession logs in with the given credentials, performs the daily
	// checkin, and fetches the authoritative account snapshot. A failed
	// checkin is not an acquisition failure: the result still carries the
	// session and snapshot, with CheckinOK false and CheckinErr set.
	AcquireSession(ctx context.Context, username, password string) (*model.AcquireResult, error)
}

// RotationSession is an open browsing session used to rotate an account's
// credentials. Close must be called on every path once the session is open.
type RotationSession interface {
	// Rotate logs in with the old credentials, submits the new username
	// and/or password through the account settings path, and re-fetches the
	// user snapshot to confirm the change took effect. Remote rejections are
	// surfaced as *model.APIError; anything else is a local fault.
	Rotate(ctx context.Context, oldUsername, oldPassword, newUsername, newPassword string) (*model.UserSnapshot, error)

	Close() error
}

// SessionOpener defines the driven port for opening a rotation session
// without logging in. Failure here is a local environment fault, never an
// API rejection: the stored credentials have not been exercised yet.
type SessionOpener interface {
	OpenSession(ctx context.Context) (RotationSession, error)
}
