// Package session holds the client-side authentication lifecycle: login,
// logout, background refresh and opportunistic restore, persisted across
// restarts through the encrypted store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/pawsy/sessiond/identity"
	"github.com/pawsy/sessiond/securestore"
	"github.com/pawsy/sessiond/token"
)

// Gateway is the slice of the identity client the manager depends on.
type Gateway interface {
	Login(ctx context.Context, creds identity.Credentials) (*identity.User, *identity.TokenPair, error)
	Me(ctx context.Context, accessToken string) (*identity.User, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error)
	Logout(ctx context.Context)
}

// Snapshot is a point-in-time copy of the session for rendering decisions.
type Snapshot struct {
	State           State
	User            *identity.User
	IsAuthenticated bool
	Err             string
}

// Manager orchestrates the session lifecycle. It is an explicitly
// constructed, dependency-injected object with no package-level state, so
// the refresh flow is testable in isolation.
type Manager struct {
	gateway Gateway
	store   *securestore.Store
	tokens  TokenSource
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	user    *identity.User
	pair    *identity.TokenPair
	lastErr string
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTokenSource overrides the default store-backed token persistence.
func WithTokenSource(ts TokenSource) Option {
	return func(m *Manager) { m.tokens = ts }
}

// NewManager creates a Manager over the given gateway and encrypted store.
func NewManager(gateway Gateway, store *securestore.Store, opts ...Option) *Manager {
	m := &Manager{
		gateway: gateway,
		store:   store,
		state:   StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tokens == nil {
		m.tokens = NewStoreTokenSource(store)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return m
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:           m.state,
		User:            m.user,
		IsAuthenticated: m.state == StateAuthenticated,
		Err:             m.lastErr,
	}
}

// Login authenticates with the identity service and persists the session.
// On failure the error message is retained for display and the session
// stays unauthenticated.
func (m *Manager) Login(ctx context.Context, creds identity.Credentials) error {
	m.setState(StateAuthenticating, "")

	user, pair, err := m.gateway.Login(ctx, creds)
	if err != nil {
		m.mu.Lock()
		m.state = StateUnauthenticated
		m.lastErr = err.Error()
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.user = user
	m.pair = pair
	m.lastErr = ""
	m.mu.Unlock()

	return m.persist(ctx)
}

// Logout ends the session. The remote call is best-effort; local state is
// cleared unconditionally regardless of gateway outcome, because logout must
// always succeed from the caller's perspective.
func (m *Manager) Logout(ctx context.Context) {
	m.setState(StateLoggingOut, "")
	m.gateway.Logout(ctx)
	m.clear(ctx)
}

// RefreshAuth rotates the token pair and re-fetches the identity snapshot.
// A refresh failure is never silently ignored here: the session is cleared
// (forced logout) and the error returned.
func (m *Manager) RefreshAuth(ctx context.Context) error {
	m.mu.Lock()
	pair := m.pair
	m.mu.Unlock()
	if pair == nil {
		m.clear(ctx)
		return fmt.Errorf("no refresh token available")
	}

	m.setState(StateRefreshing, "")

	newPair, err := m.gateway.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed, clearing session", "error", err)
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.clear(ctx)
		return err
	}

	user, err := m.gateway.Me(ctx, newPair.AccessToken)
	if err != nil {
		m.logger.Warn("identity re-fetch after refresh failed, clearing session", "error", err)
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.clear(ctx)
		return err
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.user = user
	m.pair = newPair
	m.lastErr = ""
	m.mu.Unlock()

	return m.persist(ctx)
}

// Restore repopulates the session when persisted state is empty but a stored
// refresh credential might still authenticate the caller. Restoration is
// opportunistic: failure leaves the session unauthenticated without
// surfacing an error.
func (m *Manager) Restore(ctx context.Context) bool {
	var rec Record
	found, err := m.store.Read(ctx, securestore.KeySession, &rec)
	if err != nil {
		m.logger.Warn("reading session record failed", "error", err)
	}

	pair, terr := m.tokens.Load(ctx)
	if terr != nil {
		m.logger.Warn("loading token pair failed", "error", terr)
	}

	if found && rec.User != nil && rec.IsAuthenticated {
		m.mu.Lock()
		m.state = StateAuthenticated
		m.user = rec.User
		m.pair = pair
		m.mu.Unlock()
		return true
	}

	// No local record: probe the identity service with the stored access
	// token, refreshing first if it has gone stale.
	if pair == nil {
		return false
	}
	if token.IsExpired(pair.AccessToken) {
		newPair, err := m.gateway.Refresh(ctx, pair.RefreshToken)
		if err != nil {
			m.logger.Debug("session restore refresh failed", "error", err)
			return false
		}
		pair = newPair
	}
	user, err := m.gateway.Me(ctx, pair.AccessToken)
	if err != nil {
		m.logger.Debug("session restore failed", "error", err)
		return false
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.user = user
	m.pair = pair
	m.lastErr = ""
	m.mu.Unlock()

	if err := m.persist(ctx); err != nil {
		m.logger.Warn("persisting restored session failed", "error", err)
	}
	return true
}

// Run consumes store eviction events until ctx is cancelled. A tampered
// session record drops the in-memory session so nothing operates on
// unverifiable state.
func (m *Manager) Run(ctx context.Context) {
	events, unsubscribe := m.store.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if evt.Key != securestore.KeySession && evt.Key != tokenRecordKey {
				continue
			}
			m.logger.Warn("session state evicted by store, dropping session", "key", evt.Key)
			m.mu.Lock()
			m.state = StateUnauthenticated
			m.user = nil
			m.pair = nil
			m.mu.Unlock()
		}
	}
}

// TokenPair returns the current pair, or nil when unauthenticated.
func (m *Manager) TokenPair() *identity.TokenPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair
}

func (m *Manager) setState(s State, errMsg string) {
	m.mu.Lock()
	m.state = s
	m.lastErr = errMsg
	m.mu.Unlock()
}

// persist writes the auth record and token pair. The record is written only
// while authenticated; otherwise it is removed entirely.
func (m *Manager) persist(ctx context.Context) error {
	m.mu.Lock()
	rec := Record{User: m.user, IsAuthenticated: m.state == StateAuthenticated}
	pair := m.pair
	m.mu.Unlock()

	if rec.User == nil || !rec.IsAuthenticated {
		return m.store.Delete(ctx, securestore.KeySession)
	}
	if err := m.store.Write(ctx, securestore.KeySession, rec); err != nil {
		return fmt.Errorf("persisting session record: %w", err)
	}
	if pair != nil {
		if err := m.tokens.Save(ctx, pair); err != nil {
			return fmt.Errorf("persisting token pair: %w", err)
		}
	}
	return nil
}

// clear drops all local session state, in memory and persisted.
func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.state = StateUnauthenticated
	m.user = nil
	m.pair = nil
	m.mu.Unlock()

	if err := m.store.Delete(ctx, securestore.KeySession); err != nil {
		m.logger.Warn("deleting session record failed", "error", err)
	}
	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.Warn("clearing token pair failed", "error", err)
	}
}
