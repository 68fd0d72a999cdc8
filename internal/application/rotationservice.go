package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mstolpe/quotafarm/internal/domain/model"
	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
)

// DefaultRetryAtErrorCount is the carried-in error count at which a
// duplicate-username conflict earns one randomized-suffix retry. The external
// scheduler has already retried the request twice by the time it reaches this
// value, so the plain username is considered burned.
const DefaultRetryAtErrorCount = 2

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RotationService drives one password change request through its state
// machine: not_started -> in_progress -> {completed, error}. Exactly one
// outcome report is uploaded to the ledger per request, on every path
// including panics, and the browsing session is torn down unconditionally.
type RotationService struct {
	ledger            driven.Ledger
	opener            driven.SessionOpener
	retryAtErrorCount int
}

// NewRotationService creates a RotationService. retryAtErrorCount <= 0 falls
// back to DefaultRetryAtErrorCount.
func NewRotationService(ledger driven.Ledger, opener driven.SessionOpener, retryAtErrorCount int) *RotationService {
	if retryAtErrorCount <= 0 {
		retryAtErrorCount = DefaultRetryAtErrorCount
	}
	return &RotationService{
		ledger:            ledger,
		opener:            opener,
		retryAtErrorCount: retryAtErrorCount,
	}
}

// Run processes a single pending request and returns the report that was
// uploaded to the ledger. The report's IsAPIError flag is only set for
// failures the remote API rejected authoritatively; local faults (browser
// init, panics, validation) never escalate the request's error count.
func (s *RotationService) Run(ctx context.Context, req model.PasswordChangeRequest) (report model.RotationReport) {
	report = model.RotationReport{
		RequestID: req.ID,
		Status:    model.RotationError,
	}

	defer func() {
		if r := recover(); r != nil {
			report.Status = model.RotationError
			report.ErrorReason = fmt.Sprintf("unexpected failure: %v", r)
			report.IsAPIError = false
			slog.Error("rotation panicked", "request", req.ID, "panic", r)
		}
		report.CompletedAt = time.Now()
		// The terminal report must reach the ledger even when the run was
		// canceled or panicked; nothing may fail silently into an untracked
		// request state.
		if err := s.ledger.UpdatePasswordChangeRequest(context.WithoutCancel(ctx), report); err != nil {
			slog.Error("rotation report upload failed", "request", req.ID, "error", err)
		}
	}()

	if err := req.Validate(); err != nil {
		report.ErrorReason = err.Error()
		slog.Error("rotation request invalid", "request", req.ID, "error", err)
		return report
	}

	s.markInProgress(ctx, req.ID)

	sess, err := s.opener.OpenSession(ctx)
	if err != nil {
		// Local environment fault: the stored credentials were never
		// exercised, so this must not count against the request.
		report.ErrorReason = fmt.Sprintf("open session: %v", err)
		slog.Error("rotation session init failed", "request", req.ID, "error", err)
		return report
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("rotation session close failed", "request", req.ID, "error", err)
		}
	}()

	snap, err := sess.Rotate(ctx, req.OldUsername, req.OldPassword, req.NewUsername, req.NewPassword)
	if err != nil {
		snap, err = s.maybeRetryConflict(ctx, sess, req, err)
	}
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			report.IsAPIError = true
			report.ErrorReason = apiErr.Message
		} else {
			report.ErrorReason = err.Error()
		}
		slog.Error("rotation failed", "request", req.ID, "api_error", report.IsAPIError, "error", err)
		return report
	}

	report.Status = model.RotationCompleted
	// Upload the username the site actually confirmed, not whichever
	// candidate we submitted.
	report.NewUsername = snap.Username
	report.Snapshot = snap
	slog.Info("rotation completed", "request", req.ID, "username", snap.Username)
	return report
}

// maybeRetryConflict applies the bounded conflict-retry policy: a
// duplicate-username rejection, on a request whose carried-in error count sits
// exactly at the configured threshold, earns one more attempt with two random
// suffix characters appended to the desired username. Any other failure, or a
// second failure after the retry, passes through unchanged.
func (s *RotationService) maybeRetryConflict(ctx context.Context, sess driven.RotationSession, req model.PasswordChangeRequest, rotateErr error) (*model.UserSnapshot, error) {
	var apiErr *model.APIError
	if !errors.As(rotateErr, &apiErr) {
		return nil, rotateErr
	}
	if req.NewUsername == "" || !model.IsDuplicateUsername(apiErr.Message) {
		return nil, rotateErr
	}
	if req.ErrorCount != s.retryAtErrorCount {
		return nil, rotateErr
	}

	candidate := req.NewUsername + randomSuffix(2)
	slog.Info("duplicate username, retrying with mutated candidate",
		"request", req.ID,
		"desired", req.NewUsername,
		"candidate", candidate,
	)
	return sess.Rotate(ctx, req.OldUsername, req.OldPassword, candidate, req.NewPassword)
}

// markInProgress reports the in_progress transition to the ledger. Best
// effort: a failed status upload is not worth aborting the rotation over.
func (s *RotationService) markInProgress(ctx context.Context, requestID string) {
	err := s.ledger.UpdatePasswordChangeRequest(ctx, model.RotationReport{
		RequestID: requestID,
		Status:    model.RotationInProgress,
	})
	if err != nil {
		slog.Warn("in-progress status upload failed", "request", requestID, "error", err)
	}
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.IntN(len(suffixAlphabet))]
	}
	return string(b)
}
