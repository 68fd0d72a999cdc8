package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mstolpe/quotafarm/internal/domain/model"
	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
)

// loginResponse is the JSON body of a successful login. The session token is
// NOT in here; it arrives as a cookie.
type loginResponse struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Balance  int64  `json:"balance"`
		Used     int64  `json:"used"`
	} `json:"user"`
}

// AcquireSession implements driven.SessionAcquirer. One isolated session is
// opened, used for login -> checkin -> self-info, and torn down on every exit
// path. Checkin failure does not fail the acquisition; the result reports it
// separately. Self-info is best-effort with fallback to the login snapshot.
func (c *Client) AcquireSession(ctx context.Context, username, password string) (*model.AcquireResult, error) {
	sess, err := c.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	defer sess.close()

	if err := sess.pause(ctx); err != nil {
		return nil, err
	}

	login, cookies, err := sess.login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	token, expire := sessionFromCookies(cookies)
	if token == "" {
		return nil, driven.ErrNoSession
	}
	if login.User.ID == "" {
		return nil, fmt.Errorf("login response carries no user id")
	}
	sess.userID = login.User.ID

	result := &model.AcquireResult{
		Session:           token,
		SessionExpireTime: expire,
		UserID:            login.User.ID,
		Snapshot: model.UserSnapshot{
			UserID:   login.User.ID,
			Username: login.User.Username,
			Balance:  login.User.Balance,
			Used:     login.User.Used,
		},
	}

	if err := sess.pause(ctx); err != nil {
		return nil, err
	}

	if _, err := sess.callAPI(ctx, http.MethodPost, "/api/user/checkin", nil); err != nil {
		result.CheckinErr = err
	} else {
		result.CheckinOK = true
	}

	if err := sess.pause(ctx); err != nil {
		return nil, err
	}

	if snap, err := sess.fetchSelf(ctx); err != nil {
		// Best effort; the login body already gave us a usable snapshot.
		slog.Warn("self-info fetch failed, using login snapshot", "username", username, "error", err)
	} else {
		result.Snapshot = *snap
	}

	return result, nil
}

// login performs the in-page login call. It bypasses callAPI because the
// caller needs the response's Set-Cookie headers as well as the body.
func (s *session) login(ctx context.Context, username, password string) (*loginResponse, []*http.Cookie, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encoding login body: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.client.opts.APITimeout)
	defer cancel()

	u := s.client.baseURL.JoinPath("/api/user/login")
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("building login request: %w", err)
	}
	s.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("login call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("reading login response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("decoding login response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, nil, &model.APIError{Op: "login", Message: msg}
	}

	var body loginResponse
	if err := json.Unmarshal(env.Data, &body); err != nil {
		return nil, nil, fmt.Errorf("decoding login payload: %w", err)
	}
	return &body, resp.Cookies(), nil
}

// fetchSelf retrieves the authoritative account snapshot.
func (s *session) fetchSelf(ctx context.Context) (*model.UserSnapshot, error) {
	data, err := s.callAPI(ctx, http.MethodGet, "/api/user/self", nil)
	if err != nil {
		return nil, err
	}
	var snap model.UserSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding self payload: %w", err)
	}
	return &snap, nil
}
