package model

// UserSnapshot is the target site's authoritative view of an account, as
// returned by its self-info endpoint (or embedded in the login response when
// self-info is unavailable).
type UserSnapshot struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Used     int64  `json:"used"`
}

// AcquireResult is the outcome of one session acquisition. Session success
// and checkin success are independent axes: a valid session with a failed
// checkin is still a usable result, and CheckinErr carries the reason.
type AcquireResult struct {
	Session           string
	SessionExpireTime int64 // Unix ms, from the session cookie's expiry.
	UserID            string
	Snapshot          UserSnapshot
	CheckinOK         bool
	CheckinErr        error // Nil when CheckinOK; set when the checkin step failed.
}
