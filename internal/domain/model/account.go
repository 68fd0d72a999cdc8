package model

import "time"

// AccountType identifies how an account authenticates against the target site.
type AccountType string

const (
	AccountTypePassword AccountType = "password"     // Username/password login.
	AccountTypeGoogle   AccountType = "oauth_google" // Google OAuth login; password unused.
	AccountTypeGitHub   AccountType = "oauth_github" // GitHub OAuth login; password unused.
)

// CheckinMode selects which checkin surface(s) an account uses.
type CheckinMode string

const (
	CheckinModeSite CheckinMode = "site"
	CheckinModeApp  CheckinMode = "app"
	CheckinModeBoth CheckinMode = "both"
)

// Account represents one credential set for the target service, as held by the
// remote ledger. Balance and Used are authoritative remaining/consumed quota;
// balance is only ever mutated through the ledger's atomic delta operation.
type Account struct {
	ID                string      `json:"id"`
	UserID            string      `json:"userId"`
	AccountType       AccountType `json:"accountType"`
	Username          string      `json:"username"`
	Password          string      `json:"password"`
	Session           string      `json:"session"`           // Opaque token; empty = none.
	SessionExpireTime int64       `json:"sessionExpireTime"` // Unix ms; zero or past = expired.
	CheckinMode       CheckinMode `json:"checkinMode"`
	CheckinDate       int64       `json:"checkinDate"` // Unix ms of last successful checkin.
	Balance           int64       `json:"balance"`
	Used              int64       `json:"used"`
	IsSold            bool        `json:"isSold"`
	CanSell           bool        `json:"canSell"`
}

// SessionValid reports whether the account holds a session token that has not
// expired as of now.
func (a Account) SessionValid(now time.Time) bool {
	if a.Session == "" {
		return false
	}
	return a.SessionExpireTime > now.UnixMilli()
}

// CheckedInOn reports whether the account's last successful checkin falls on
// the given calendar day in the given location. Checkin days are defined by
// the service's operating timezone, not the caller's local zone.
func (a Account) CheckedInOn(day time.Time, loc *time.Location) bool {
	if a.CheckinDate == 0 {
		return false
	}
	last := time.UnixMilli(a.CheckinDate).In(loc)
	d := day.In(loc)
	return last.Year() == d.Year() && last.Month() == d.Month() && last.Day() == d.Day()
}

// EligibleForCheckin reports whether the account is due for a checkin pass:
// not sold, no valid session, and not already checked in on the current day
// in the reference timezone. Owner-level conditions (active, unexpired) are
// enforced server-side by the ledger query.
func (a Account) EligibleForCheckin(now time.Time, loc *time.Location) bool {
	if a.IsSold {
		return false
	}
	if a.SessionValid(now) {
		return false
	}
	return !a.CheckedInOn(now, loc)
}
