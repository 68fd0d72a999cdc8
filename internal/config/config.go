// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	LedgerURL   string
	LedgerToken string
	SiteURL     string
	DBPath      string

	CheckinLimit    int
	CheckinInterval time.Duration
	CheckinTZ       *time.Location

	ActionDelayMin  time.Duration
	ActionDelayMax  time.Duration
	AccountDelayMin time.Duration
	AccountDelayMax time.Duration
	NavTimeout      time.Duration

	RotateRetryAt int
}

// Load reads configuration from environment variables and returns a validated
// Config. QUOTAFARM_LEDGER_URL and QUOTAFARM_SITE_URL are required. Optional
// variables with defaults: QUOTAFARM_DB_PATH (quotafarm.db),
// QUOTAFARM_CHECKIN_LIMIT (0 = unbounded), QUOTAFARM_CHECKIN_INTERVAL (6h),
// QUOTAFARM_CHECKIN_TZ (Asia/Shanghai), QUOTAFARM_ACTION_DELAY_MIN/MAX
// (800ms/2.5s), QUOTAFARM_ACCOUNT_DELAY_MIN/MAX (3s/8s),
// QUOTAFARM_NAV_TIMEOUT (10m), QUOTAFARM_ROTATE_RETRY_AT (2).
func Load() (*Config, error) {
	ledgerURL := os.Getenv("QUOTAFARM_LEDGER_URL")
	if ledgerURL == "" {
		return nil, fmt.Errorf("QUOTAFARM_LEDGER_URL is required")
	}
	siteURL := os.Getenv("QUOTAFARM_SITE_URL")
	if siteURL == "" {
		return nil, fmt.Errorf("QUOTAFARM_SITE_URL is required")
	}

	dbPath := "quotafarm.db"
	if v, ok := os.LookupEnv("QUOTAFARM_DB_PATH"); ok {
		dbPath = v
	}

	limit := 0
	if v, ok := os.LookupEnv("QUOTAFARM_CHECKIN_LIMIT"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("QUOTAFARM_CHECKIN_LIMIT has invalid value %q", v)
		}
		limit = parsed
	}

	interval, err := durationEnv("QUOTAFARM_CHECKIN_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	tzName := "Asia/Shanghai"
	if v, ok := os.LookupEnv("QUOTAFARM_CHECKIN_TZ"); ok {
		tzName = v
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("QUOTAFARM_CHECKIN_TZ has invalid timezone %q: %w", tzName, err)
	}

	actionMin, err := durationEnv("QUOTAFARM_ACTION_DELAY_MIN", 800*time.Millisecond)
	if err != nil {
		return nil, err
	}
	actionMax, err := durationEnv("QUOTAFARM_ACTION_DELAY_MAX", 2500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	accountMin, err := durationEnv("QUOTAFARM_ACCOUNT_DELAY_MIN", 3*time.Second)
	if err != nil {
		return nil, err
	}
	accountMax, err := durationEnv("QUOTAFARM_ACCOUNT_DELAY_MAX", 8*time.Second)
	if err != nil {
		return nil, err
	}
	if actionMax < actionMin || accountMax < accountMin {
		return nil, fmt.Errorf("delay maxima must not be below their minima")
	}

	navTimeout, err := durationEnv("QUOTAFARM_NAV_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	retryAt := 2
	if v, ok := os.LookupEnv("QUOTAFARM_ROTATE_RETRY_AT"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("QUOTAFARM_ROTATE_RETRY_AT has invalid value %q", v)
		}
		retryAt = parsed
	}

	return &Config{
		LedgerURL:       ledgerURL,
		LedgerToken:     os.Getenv("QUOTAFARM_LEDGER_TOKEN"),
		SiteURL:         siteURL,
		DBPath:          dbPath,
		CheckinLimit:    limit,
		CheckinInterval: interval,
		CheckinTZ:       loc,
		ActionDelayMin:  actionMin,
		ActionDelayMax:  actionMax,
		AccountDelayMin: accountMin,
		AccountDelayMax: accountMax,
		NavTimeout:      navTimeout,
		RotateRetryAt:   retryAt,
	}, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	return parsed, nil
}
