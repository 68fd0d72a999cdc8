package model

import (
	"fmt"
	"strings"
)

// APIError marks a failure the remote API rejected authoritatively, as
// opposed to a local transport or environment fault. The distinction drives
// error-count escalation on the ledger: only APIError failures count.
type APIError struct {
	Op      string // Operation that was rejected, e.g. "login" or "update-settings".
	Message string // Application-level failure message from the remote API.
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// IsDuplicateUsername reports whether a remote failure message carries the
// target site's duplicate-username constraint signature. The site phrases it
// inconsistently across endpoints, so match loosely.
func IsDuplicateUsername(msg string) bool {
	m := strings.ToLower(msg)
	if strings.Contains(m, "duplicate") && strings.Contains(m, "username") {
		return true
	}
	if strings.Contains(m, "username") && (strings.Contains(m, "already exists") || strings.Contains(m, "already taken") || strings.Contains(m, "already in use")) {
		return true
	}
	return false
}
