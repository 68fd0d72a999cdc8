package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstolpe/quotafarm/internal/domain/model"
)

func TestSessionValid(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session string
		expire  int64
		want    bool
	}{
		{"no token", "", now.Add(time.Hour).UnixMilli(), false},
		{"expired", "tok", now.Add(-time.Minute).UnixMilli(), false},
		{"zero expiry", "tok", 0, false},
		{"valid", "tok", now.Add(time.Hour).UnixMilli(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := model.Account{Session: tt.session, SessionExpireTime: tt.expire}
			assert.Equal(t, tt.want, acct.SessionValid(now))
		})
	}
}

func TestCheckedInOn_ReferenceTimezone(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	// 2026-08-30 23:30 in Shanghai is still 2026-08-30 there, but already
	// 2026-08-31 in e.g. Sydney. The day boundary must follow the reference
	// zone, not wherever the process runs.
	checkin := time.Date(2026, 8, 30, 23, 30, 0, 0, shanghai)
	acct := model.Account{CheckinDate: checkin.UnixMilli()}

	sameDay := time.Date(2026, 8, 30, 8, 0, 0, 0, shanghai)
	assert.True(t, acct.CheckedInOn(sameDay, shanghai))

	nextDay := time.Date(2026, 8, 31, 0, 30, 0, 0, shanghai)
	assert.False(t, acct.CheckedInOn(nextDay, shanghai))

	// Same instant expressed in UTC must give the same answer.
	assert.True(t, acct.CheckedInOn(sameDay.UTC(), shanghai))
}

func TestCheckedInOn_NeverCheckedIn(t *testing.T) {
	acct := model.Account{}
	assert.False(t, acct.CheckedInOn(time.Now(), time.UTC))
}

func TestEligibleForCheckin(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	base := model.Account{
		ID:       "a1",
		Username: "alice",
	}

	t.Run("fresh account is eligible", func(t *testing.T) {
		assert.True(t, base.EligibleForCheckin(now, time.UTC))
	})

	t.Run("sold account is not", func(t *testing.T) {
		acct := base
		acct.IsSold = true
		assert.False(t, acct.EligibleForCheckin(now, time.UTC))
	})

	t.Run("live session is not", func(t *testing.T) {
		acct := base
		acct.Session = "tok"
		acct.SessionExpireTime = now.Add(time.Hour).UnixMilli()
		assert.False(t, acct.EligibleForCheckin(now, time.UTC))
	})

	t.Run("expired session is eligible again", func(t *testing.T) {
		acct := base
		acct.Session = "tok"
		acct.SessionExpireTime = now.Add(-time.Hour).UnixMilli()
		assert.True(t, acct.EligibleForCheckin(now, time.UTC))
	})

	t.Run("already checked in today is not", func(t *testing.T) {
		acct := base
		acct.CheckinDate = now.Add(-2 * time.Hour).UnixMilli()
		assert.False(t, acct.EligibleForCheckin(now, time.UTC))
	})

	t.Run("checked in yesterday is eligible", func(t *testing.T) {
		acct := base
		acct.CheckinDate = now.Add(-26 * time.Hour).UnixMilli()
		assert.True(t, acct.EligibleForCheckin(now, time.UTC))
	})
}
