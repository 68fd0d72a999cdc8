// Package site implements the SessionAcquirer and SessionOpener ports against
// the target service. Each call drives an isolated, single-use browsing
// session: a fresh cookie jar, realistic client fingerprint headers, and
// guaranteed teardown on every exit path. Sessions are never shared or reused
// across accounts.
package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/mstolpe/quotafarm/internal/domain/model"
	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
	"github.com/mstolpe/quotafarm/internal/timing"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.SessionAcquirer = (*Client)(nil)
	_ driven.SessionOpener   = (*Client)(nil)
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	defaultLocale    = "en-US,en;q=0.9"

	// First page load on the target site can hang for minutes behind its
	// anti-bot interstitial; the bootstrap request gets a very large ceiling
	// rather than a retry.
	defaultNavTimeout = 10 * time.Minute
	defaultAPITimeout = 30 * time.Second

	sessionCookieName = "session"
)

// Options tunes the Client. Zero values fall back to defaults.
type Options struct {
	UserAgent  string
	Locale     string        // Accept-Language value.
	NavTimeout time.Duration // Bootstrap page-load ceiling.
	APITimeout time.Duration // Per-API-call timeout.
	DelayMin   time.Duration // Human-like pause between network actions.
	DelayMax   time.Duration
	Transport  http.RoundTripper // Overridable for tests.
}

// Client talks to the target site. It is stateless across calls; all per-call
// state lives in the session each call opens.
type Client struct {
	baseURL *url.URL
	opts    Options

	// delay is swappable so tests don't pay real pauses.
	delay func(min, max time.Duration) time.Duration
}

// NewClient creates a Client for the given site base URL.
func NewClient(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site base URL: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Locale == "" {
		opts.Locale = defaultLocale
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}
	if opts.APITimeout <= 0 {
		opts.APITimeout = defaultAPITimeout
	}
	return &Client{baseURL: u, opts: opts, delay: timing.HumanDelay}, nil
}

// session is one isolated browsing session: an exclusively owned cookie jar
// and HTTP client, scoped construct -> use -> release.
type session struct {
	client *Client
	httpc  *http.Client
	userID string // Set after login; sent on subsequent calls.
}

// open creates the session and performs the bootstrap page load so the site's
// client-side session machinery has settled before any API call. The large
// navigation ceiling is the only bound; there is no retry.
func (c *Client) open(ctx context.Context) (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	s := &session{
		client: c,
		httpc: &http.Client{
			Jar:       jar,
			Transport: c.opts.Transport,
		},
	}

	navCtx, cancel := context.WithTimeout(ctx, c.opts.NavTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, c.baseURL.String(), nil)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("building bootstrap request: %w", err)
	}
	s.decorate(req)
	resp, err := s.httpc.Do(req)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("bootstrap page load: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		s.close()
		return nil, fmt.Errorf("bootstrap page load: status %d", resp.StatusCode)
	}
	return s, nil
}

// close tears the session down. Safe to call more than once.
func (s *session) close() {
	s.httpc.CloseIdleConnections()
	s.httpc.Jar = nil
}

// decorate applies the client fingerprint headers every request carries.
func (s *session) decorate(req *http.Request) {
	req.Header.Set("User-Agent", s.client.opts.UserAgent)
	req.Header.Set("Accept-Language", s.client.opts.Locale)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if s.userID != "" {
		req.Header.Set("X-User-Id", s.userID)
	}
}

// pause inserts a human-like delay between network actions.
func (s *session) pause(ctx context.Context) error {
	o := s.client.opts
	if o.DelayMax <= 0 {
		return ctx.Err()
	}
	d := s.client.delay(o.DelayMin, o.DelayMax)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// envelope is the site's uniform API response shape.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// callAPI issues one JSON API call within the session and decodes the site's
// response envelope. Application-level failures come back as *model.APIError;
// transport failures as plain errors.
func (s *session) callAPI(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", path, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.client.opts.APITimeout)
	defer cancel()

	u := s.client.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(callCtx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	s.decorate(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding %s response (status %d): %w", path, resp.StatusCode, err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &model.APIError{Op: method + " " + path, Message: msg}
	}
	return env.Data, nil
}

// sessionFromCookies extracts the session token and its expiry from the login
// response's Set-Cookie headers. The token lives in a cookie, never in the
// JSON body.
func sessionFromCookies(cookies []*http.Cookie) (token string, expireMillis int64) {
	for _, ck := range cookies {
		if ck.Name != sessionCookieName || ck.Value == "" {
			continue
		}
		token = ck.Value
		if !ck.Expires.IsZero() {
			expireMillis = ck.Expires.UnixMilli()
		} else {
			// Session cookie without an explicit expiry; the site keeps
			// these alive for about a day.
			expireMillis = time.Now().Add(24 * time.Hour).UnixMilli()
		}
		return token, expireMillis
	}
	return "", 0
}
