// Package identity is the HTTP gateway to the remote identity service. It
// performs login, logout, identity lookup and token refresh, and normalizes
// every transport failure into the package's error taxonomy.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pawsy/sessiond/token"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultTokenTTLMin = 60
)

// RetryPolicy bounds retries for idempotent reads. Client errors (4xx) are
// never retried; server errors, timeouts and connectivity failures are.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff starting
// at one second.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: time.Second}

// Client talks to the identity service. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL     string
	http        *http.Client
	logger      *slog.Logger
	retry       RetryPolicy
	tokenTTLMin int

	// refreshGroup coalesces concurrent refresh calls into one in-flight
	// request so near-simultaneous expiry observations cannot stampede
	// the identity service.
	refreshGroup singleflight.Group
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy overrides the read retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithTokenTTL sets the token lifetime, in minutes, requested from the
// identity service on login and refresh.
func WithTokenTTL(minutes int) Option {
	return func(c *Client) { c.tokenTTLMin = minutes }
}

// New creates a Client for the identity service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: defaultTimeout},
		retry:       DefaultRetryPolicy,
		tokenTTLMin: defaultTokenTTLMin,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return c
}

// Login exchanges credentials for a user snapshot and a token pair.
// A 401 from the service is surfaced as KindInvalidCredentials.
func (c *Client) Login(ctx context.Context, creds Credentials) (*User, *TokenPair, error) {
	body := loginRequest{
		Username:      creds.Username,
		Password:      creds.Password,
		ExpiresInMins: c.tokenTTLMin,
	}
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		var ie *Error
		if errors.As(err, &ie) && ie.Kind == KindUnauthorized {
			ie.Kind = KindInvalidCredentials
		}
		return nil, nil, err
	}
	user := resp.User
	return &user, c.newTokenPair(resp.AccessToken, resp.RefreshToken), nil
}

// Me fetches the identity behind accessToken. It doubles as the
// session-restore probe when local state is empty, so it is retried
// with backoff on transient failures.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var user User
	err := c.withRetry(ctx, "GET /auth/me", func() error {
		return c.do(ctx, http.MethodGet, "/auth/me", nil, accessToken, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Refresh exchanges refreshToken for a new token pair. Concurrent callers
// are coalesced into a single upstream call; every failure is tagged
// KindRefreshFailed so callers can trigger the forced-logout cascade.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	v, err, _ := c.refreshGroup.Do(refreshToken, func() (any, error) {
		body := refreshRequest{RefreshToken: refreshToken, ExpiresInMins: c.tokenTTLMin}
		var resp refreshResponse
		if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, "", &resp); err != nil {
			return nil, err
		}
		return c.newTokenPair(resp.AccessToken, resp.RefreshToken), nil
	})
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) {
			return nil, &Error{Kind: KindRefreshFailed, Status: ie.Status, Message: ie.Message}
		}
		return nil, &Error{Kind: KindRefreshFailed, Message: err.Error()}
	}
	return v.(*TokenPair), nil
}

// Logout notifies the identity service that the session ended. It is
// best-effort: failures are logged and swallowed, because logout must always
// succeed from the caller's perspective.
func (c *Client) Logout(ctx context.Context) {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", struct{}{}, "", nil); err != nil {
		c.logger.Warn("identity logout failed", "error", err)
	}
}

// newTokenPair stamps the pair with the expiry encoded in the access token.
// If the token payload is unreadable the requested TTL is used instead.
func (c *Client) newTokenPair(access, refresh string) *TokenPair {
	expiresAt, err := token.ExpiresAt(access)
	if err != nil {
		expiresAt = time.Now().Add(time.Duration(c.tokenTTLMin) * time.Minute)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
}

// withRetry runs fn with exponential backoff. Terminal (4xx) failures stop
// immediately; the last error is returned once attempts are exhausted.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := c.retry.BaseDelay
	var err error
	for attempt := 1; attempt <= c.retry.Attempts+1; attempt++ {
		err = fn()
		if err == nil || !Retryable(err) {
			return err
		}
		if attempt > c.retry.Attempts {
			break
		}
		c.logger.Warn("retrying identity call", "op", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return transportError(ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// do executes a single request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		// Best-effort: an unreadable error body falls back to the
		// status-class message.
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return statusError(resp.StatusCode, apiErr.Message)
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
