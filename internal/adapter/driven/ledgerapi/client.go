// Package ledgerapi implements the Ledger port against the backend's JSON API.
package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mstolpe/quotafarm/internal/domain/model"
	"github.com/mstolpe/quotafarm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Ledger = (*Client)(nil)

const defaultTimeout = 30 * time.Second

// Client talks to the backend ledger service. Transient transport failures
// and 5xx responses are retried with bounded exponential backoff;
// application-level rejections (insufficient balance, validation) are
// permanent and surface immediately.
type Client struct {
	baseURL    *url.URL
	token      string
	httpc      *http.Client
	maxRetries uint64
}

// NewClient creates a ledger client with default transport settings.
func NewClient(baseURL, token string) (*Client, error) {
	return NewClientWithHTTPClient(&http.Client{Timeout: defaultTimeout}, baseURL, token)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ledger base URL: %w", err)
	}
	return &Client{
		baseURL:    u,
		token:      token,
		httpc:      httpClient,
		maxRetries: 3,
	}, nil
}

// eligibleResponse mirrors the fetch-eligible-accounts wire shape.
type eligibleResponse struct {
	Accounts      []model.Account `json:"accounts"`
	AsOfTime      time.Time       `json:"asOfTime"`
	ReferenceDate string          `json:"referenceDate"`
}

// FetchEligibleAccounts implements driven.Ledger.
func (c *Client) FetchEligibleAccounts(ctx context.Context, limit int) (*driven.EligibleAccounts, error) {
	path := "/api/accounts/eligible"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var body eligibleResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, fmt.Errorf("fetching eligible accounts: %w", err)
	}
	if body.Accounts == nil {
		body.Accounts = []model.Account{}
	}
	return &driven.EligibleAccounts{
		Accounts:      body.Accounts,
		AsOfTime:      body.AsOfTime,
		ReferenceDate: body.ReferenceDate,
	}, nil
}

// IncrementBalance implements driven.Ledger. The amount may be negative; a
// debit the account cannot cover comes back as ErrInsufficientBalance wrapped
// with the ledger's authoritative balance.
func (c *Client) IncrementBalance(ctx context.Context, accountID string, amount int64) (*driven.BalanceChange, error) {
	var body struct {
		OldBalance int64 `json:"oldBalance"`
		NewBalance int64 `json:"newBalance"`
	}
	err := c.call(ctx, http.MethodPost, "/api/accounts/"+url.PathEscape(accountID)+"/balance",
		map[string]int64{"amount": amount}, &body)
	if err != nil {
		var apiErr *apiFailure
		if errors.As(err, &apiErr) && apiErr.Code == "insufficient_balance" {
			return nil, fmt.Errorf("account %s balance %d cannot cover delta %d: %w",
				accountID, apiErr.Balance, amount, driven.ErrInsufficientBalance)
		}
		return nil, fmt.Errorf("incrementing balance for %s: %w", accountID, err)
	}
	return &driven.BalanceChange{OldBalance: body.OldBalance, NewBalance: body.NewBalance}, nil
}

// UpdateAccountFields implements driven.Ledger.
func (c *Client) UpdateAccountFields(ctx context.Context, accountID string, fields map[string]any) (int, error) {
	var body struct {
		Updated int `json:"updated"`
	}
	err := c.call(ctx, http.MethodPatch, "/api/accounts/"+url.PathEscape(accountID), fields, &body)
	if err != nil {
		return 0, fmt.Errorf("updating account %s: %w", accountID, err)
	}
	return body.Updated, nil
}

// rotationReportBody mirrors the update-password-change-request wire shape.
type rotationReportBody struct {
	Status      model.RotationStatus `json:"status"`
	ErrorReason string               `json:"errorReason,omitempty"`
	IsAPIError  bool                 `json:"isApiError"`
	NewUsername string               `json:"newUsername,omitempty"`
	AccountInfo *model.UserSnapshot  `json:"accountInfo,omitempty"`
	CompletedAt int64                `json:"completedAt,omitempty"`
}

// UpdatePasswordChangeRequest implements driven.Ledger.
func (c *Client) UpdatePasswordChangeRequest(ctx context.Context, report model.RotationReport) error {
	body := rotationReportBody{
		Status:      report.Status,
		ErrorReason: report.ErrorReason,
		IsAPIError:  report.IsAPIError,
		NewUsername: report.NewUsername,
		AccountInfo: report.Snapshot,
	}
	if !report.CompletedAt.IsZero() {
		body.CompletedAt = report.CompletedAt.UnixMilli()
	}
	err := c.call(ctx, http.MethodPut, "/api/password-changes/"+url.PathEscape(report.RequestID), body, nil)
	if err != nil {
		return fmt.Errorf("updating password change request %s: %w", report.RequestID, err)
	}
	return nil
}

// apiFailure is the ledger's error response shape.
type apiFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Balance int64  `json:"balance"` // Authoritative balance on insufficient_balance.
	status  int
}

func (e *apiFailure) Error() string {
	return fmt.Sprintf("ledger rejected request (%s, status %d): %s", e.Code, e.status, e.Message)
}

// call issues one request with retry-on-transient semantics and decodes the
// response into out (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
	}

	op := func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building %s request: %w", path, err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("reading %s response: %w", path, err)
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		case resp.StatusCode >= 400:
			failure := &apiFailure{status: resp.StatusCode}
			if err := json.Unmarshal(raw, failure); err != nil {
				failure.Message = string(raw)
			}
			return backoff.Permanent(failure)
		}

		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}
