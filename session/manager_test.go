package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawsy/sessiond/identity"
	"github.com/pawsy/sessiond/securestore"
	"github.com/pawsy/sessiond/securestore/memory"
)

type fakeGateway struct {
	loginUser   *identity.User
	loginPair   *identity.TokenPair
	loginErr    error
	meUser      *identity.User
	meErr       error
	refreshPair *identity.TokenPair
	refreshErr  error

	loginCalls   int
	meCalls      int
	refreshCalls int
	logoutCalls  int
}

func (f *fakeGateway) Login(ctx context.Context, creds identity.Credentials) (*identity.User, *identity.TokenPair, error) {
	f.loginCalls++
	return f.loginUser, f.loginPair, f.loginErr
}

func (f *fakeGateway) Me(ctx context.Context, accessToken string) (*identity.User, error) {
	f.meCalls++
	return f.meUser, f.meErr
}

func (f *fakeGateway) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	f.refreshCalls++
	return f.refreshPair, f.refreshErr
}

func (f *fakeGateway) Logout(ctx context.Context) {
	f.logoutCalls++
}

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func testUser() *identity.User {
	return &identity.User{ID: 1, Username: "emilys", FirstName: "Emily", LastName: "Johnson"}
}

func testPair(t *testing.T, ttl time.Duration) *identity.TokenPair {
	t.Helper()
	exp := time.Now().Add(ttl)
	return &identity.TokenPair{
		AccessToken:  mintToken(t, exp),
		RefreshToken: "refresh-token",
		ExpiresAt:    exp,
	}
}

func newTestManager(t *testing.T, gw Gateway) (*Manager, *securestore.Store, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	store, err := securestore.New(backend, "session-test-secret",
		securestore.WithProtectedKeys(ProtectedKeys()))
	require.NoError(t, err)
	return NewManager(gw, store), store, backend
}

func readRecord(t *testing.T, store *securestore.Store) (Record, bool) {
	t.Helper()
	var rec Record
	found, err := store.Read(context.Background(), securestore.KeySession, &rec)
	require.NoError(t, err)
	return rec, found
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		gw := &fakeGateway{loginUser: testUser(), loginPair: testPair(t, time.Hour)}
		m, store, _ := newTestManager(t, gw)

		require.NoError(t, m.Login(ctx, identity.Credentials{Username: "emilys", Password: "pw"}))

		snap := m.Snapshot()
		assert.Equal(t, StateAuthenticated, snap.State)
		assert.True(t, snap.IsAuthenticated)
		assert.Equal(t, "Emily Johnson", snap.User.Name())

		rec, found := readRecord(t, store)
		require.True(t, found)
		assert.True(t, rec.IsAuthenticated)
		assert.Equal(t, "emilys", rec.User.Username)

		pair, err := NewStoreTokenSource(store).Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, pair)
		assert.Equal(t, "refresh-token", pair.RefreshToken)
	})

	t.Run("Failure", func(t *testing.T) {
		gw := &fakeGateway{loginErr: &identity.Error{Kind: identity.KindInvalidCredentials, Status: 401, Message: "Invalid credentials"}}
		m, store, _ := newTestManager(t, gw)

		err := m.Login(ctx, identity.Credentials{Username: "x", Password: "y"})
		require.Error(t, err)

		snap := m.Snapshot()
		assert.Equal(t, StateUnauthenticated, snap.State)
		assert.Contains(t, snap.Err, "Invalid credentials")

		_, found := readRecord(t, store)
		assert.False(t, found, "no record may be persisted after a failed login")
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{loginUser: testUser(), loginPair: testPair(t, time.Hour)}
	m, store, _ := newTestManager(t, gw)

	require.NoError(t, m.Login(ctx, identity.Credentials{Username: "emilys", Password: "pw"}))
	m.Logout(ctx)

	assert.Equal(t, 1, gw.logoutCalls)
	snap := m.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)

	_, found := readRecord(t, store)
	assert.False(t, found, "record must be absent after logout")

	pair, err := NewStoreTokenSource(store).Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, pair, "token pair must be cleared on logout")
}

func TestRefreshAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rotated := testPair(t, 2*time.Hour)
		refreshedUser := testUser()
		refreshedUser.Email = "fresh@x.com"
		gw := &fakeGateway{
			loginUser:   testUser(),
			loginPair:   testPair(t, time.Hour),
			refreshPair: rotated,
			meUser:      refreshedUser,
		}
		m, store, _ := newTestManager(t, gw)
		require.NoError(t, m.Login(ctx, identity.Credentials{Username: "emilys", Password: "pw"}))

		require.NoError(t, m.RefreshAuth(ctx))
		assert.Equal(t, 1, gw.refreshCalls)
		assert.Equal(t, 1, gw.meCalls, "identity must be re-fetched after refresh")

		snap := m.Snapshot()
		assert.Equal(t, StateAuthenticated, snap.State)
		assert.Equal(t, "fresh@x.com", snap.User.Email)

		pair, err := NewStoreTokenSource(store).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, rotated.RefreshToken, pair.RefreshToken)
	})

	t.Run("FailureCascade", func(t *testing.T) {
		gw := &fakeGateway{
			loginUser:  testUser(),
			loginPair:  testPair(t, time.Hour),
			refreshErr: &identity.Error{Kind: identity.KindRefreshFailed, Status: 401, Message: "Refresh token expired"},
		}
		m, store, _ := newTestManager(t, gw)
		require.NoError(t, m.Login(ctx, identity.Credentials{Username: "emilys", Password: "pw"}))

		err := m.RefreshAuth(ctx)
		require.Error(t, err)

		snap := m.Snapshot()
		assert.Equal(t, StateUnauthenticated, snap.State)
		assert.Nil(t, snap.User, "no user may be retained after refresh failure")

		_, found := readRecord(t, store)
		assert.False(t, found)

		pair, perr := NewStoreTokenSource(store).Load(ctx)
		require.NoError(t, perr)
		assert.Nil(t, pair)
	})

	t.Run("NoTokens", func(t *testing.T) {
		gw := &fakeGateway{}
		m, _, _ := newTestManager(t, gw)
		assert.Error(t, m.RefreshAuth(ctx))
		assert.Equal(t, 0, gw.refreshCalls)
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("FromPersistedRecord", func(t *testing.T) {
		gw := &fakeGateway{loginUser: testUser(), loginPair: testPair(t, time.Hour)}
		m, store, _ := newTestManager(t, gw)
		require.NoError(t, m.Login(ctx, identity.Credentials{Username: "emilys", Password: "pw"}))

		// Fresh manager over the same store, as after a process restart.
		m2 := NewManager(gw, store)
		assert.True(t, m2.Restore(ctx))
		snap := m2.Snapshot()
		assert.Equal(t, StateAuthenticated, snap.State)
		assert.Equal(t, "emilys", snap.User.Username)
	})

	t.Run("FromStoredTokens", func(t *testing.T) {
		gw := &fakeGateway{meUser: testUser()}
		m, store, _ := newTestManager(t, gw)

		// Record absent but a live token pair survives, mirroring a cleared
		// local store with valid cookies.
		require.NoError(t, NewStoreTokenSource(store).Save(ctx, testPair(t, time.Hour)))

		assert.True(t, m.Restore(ctx))
		assert.Equal(t, 1, gw.meCalls)
		assert.Equal(t, 0, gw.refreshCalls)

		_, found := readRecord(t, store)
		assert.True(t, found, "restored session must be persisted")
	})

	t.Run("ExpiredAccessTokenRefreshesFirst", func(t *testing.T) {
		gw := &fakeGateway{meUser: testUser(), refreshPair: testPair(t, time.Hour)}
		m, store, _ := newTestManager(t, gw)
		require.NoError(t, NewStoreTokenSource(store).Save(ctx, testPair(t, -time.Minute)))

		assert.True(t, m.Restore(ctx))
		assert.Equal(t, 1, gw.refreshCalls)
		assert.Equal(t, 1, gw.meCalls)
	})

	t.Run("FailureIsSilent", func(t *testing.T) {
		gw := &fakeGateway{meErr: &identity.Error{Kind: identity.KindUnauthorized, Status: 401, Message: "invalid session"}}
		m, store, _ := newTestManager(t, gw)
		require.NoError(t, NewStoreTokenSource(store).Save(ctx, testPair(t, time.Hour)))

		assert.False(t, m.Restore(ctx))
		snap := m.Snapshot()
		assert.Equal(t, StateUnauthenticated, snap.State)
	})

	t.Run("NothingToRestore", func(t *testing.T) {
		gw := &fakeGateway{}
		m, _, _ := newTestManager(t, gw)
		assert.False(t, m.Restore(ctx))
		assert.Equal(t, 0, gw.meCalls)
	})
}

func TestTamperDropsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &fakeGateway{loginUser: testUser(), loginPair: testPair(t, time.Hour)}
	m, store, backend := newTestManager(t, gw)
	require.NoError(t, m.Login(ctx, identity.Credentials{Username: "emilys", Password: "pw"}))

	go store.Run(ctx)
	go m.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	backend.Inject(securestore.KeySession, []byte("definitely not an envelope"))

	require.Eventually(t, func() bool {
		return m.Snapshot().State == StateUnauthenticated
	}, time.Second, 10*time.Millisecond, "tampered session record must drop the in-memory session")
}
