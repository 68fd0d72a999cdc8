package site

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mstolpe/quotafarm/internal/domain/model"
	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
)

// OpenSession implements driven.SessionOpener: it spins up an isolated
// browsing session without logging in. The stored credentials may be stale,
// so authentication is deferred to Rotate.
func (c *Client) OpenSession(ctx context.Context) (driven.RotationSession, error) {
	sess, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	return &rotationSession{sess: sess}, nil
}

type rotationSession struct {
	sess *session
}

// Rotate logs in with the old credentials, pushes the new username and/or
// password through the account settings endpoint, then re-fetches the user
// snapshot to confirm the change actually took effect. The returned snapshot
// is the site's authoritative post-change state.
func (r *rotationSession) Rotate(ctx context.Context, oldUsername, oldPassword, newUsername, newPassword string) (*model.UserSnapshot, error) {
	login, cookies, err := r.sess.login(ctx, oldUsername, oldPassword)
	if err != nil {
		return nil, err
	}
	if token, _ := sessionFromCookies(cookies); token == "" {
		return nil, driven.ErrNoSession
	}
	r.sess.userID = login.User.ID

	if err := r.sess.pause(ctx); err != nil {
		return nil, err
	}

	change := map[string]string{}
	if newUsername != "" {
		change["username"] = newUsername
	}
	if newPassword != "" {
		change["password"] = newPassword
	}
	if _, err := r.sess.callAPI(ctx, http.MethodPut, "/api/user/self", change); err != nil {
		return nil, err
	}

	if err := r.sess.pause(ctx); err != nil {
		return nil, err
	}

	snap, err := r.sess.fetchSelf(ctx)
	if err != nil {
		return nil, fmt.Errorf("verifying settings change: %w", err)
	}
	if newUsername != "" && snap.Username != newUsername {
		// The update call claimed success but the authoritative state
		// disagrees; treat as a remote rejection.
		return nil, &model.APIError{
			Op:      "verify-settings",
			Message: fmt.Sprintf("username is %q after update, expected %q", snap.Username, newUsername),
		}
	}
	return snap, nil
}

func (r *rotationSession) Close() error {
	r.sess.close()
	return nil
}
