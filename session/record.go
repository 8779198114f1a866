package session

import (
	"context"

	"github.com/pawsy/sessiond/identity"
	"github.com/pawsy/sessiond/securestore"
)

// Record is the persisted shape of the session. Only the user snapshot and
// the authenticated flag survive a restart; when the user is absent the
// record must not exist in storage at all.
type Record struct {
	User            *identity.User `json:"user"`
	IsAuthenticated bool           `json:"isAuthenticated"`
}

// TokenSource persists the token pair across restarts. It is the non-browser
// analogue of the HTTP cookie jar: the refresh token it holds is the recovery
// credential when in-memory state is gone.
type TokenSource interface {
	// Load returns the stored pair, or (nil, nil) when absent.
	Load(ctx context.Context) (*identity.TokenPair, error)
	Save(ctx context.Context, pair *identity.TokenPair) error
	Clear(ctx context.Context) error
}

// tokenRecordKey holds the encrypted token pair for store-backed sources.
const tokenRecordKey = "tokens"

// storeTokenSource keeps the pair in the encrypted store.
type storeTokenSource struct {
	store *securestore.Store
}

// NewStoreTokenSource returns a TokenSource persisting into store. Callers
// should include its record key in the store's protected set; ProtectedKeys
// returns the full set to configure.
func NewStoreTokenSource(store *securestore.Store) TokenSource {
	return &storeTokenSource{store: store}
}

// ProtectedKeys is the store key set for a deployment using a store-backed
// token source.
func ProtectedKeys() []string {
	return append(append([]string{}, securestore.DefaultProtectedKeys...), tokenRecordKey)
}

func (s *storeTokenSource) Load(ctx context.Context) (*identity.TokenPair, error) {
	var pair identity.TokenPair
	found, err := s.store.Read(ctx, tokenRecordKey, &pair)
	if err != nil || !found {
		return nil, err
	}
	return &pair, nil
}

func (s *storeTokenSource) Save(ctx context.Context, pair *identity.TokenPair) error {
	return s.store.Write(ctx, tokenRecordKey, pair)
}

func (s *storeTokenSource) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, tokenRecordKey)
}
