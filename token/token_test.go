package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestIsExpired(t *testing.T) {
	t.Run("PastDeadline", func(t *testing.T) {
		assert.True(t, IsExpired(signedToken(t, time.Now().Add(-time.Second))))
	})

	t.Run("FutureDeadline", func(t *testing.T) {
		assert.False(t, IsExpired(signedToken(t, time.Now().Add(time.Hour))))
	})

	t.Run("NoSeparator", func(t *testing.T) {
		assert.True(t, IsExpired("not-a-jwt"))
	})

	t.Run("NonJSONPayload", func(t *testing.T) {
		payload := base64.RawURLEncoding.EncodeToString([]byte("garbage"))
		assert.True(t, IsExpired("eyJhbGciOiJIUzI1NiJ9."+payload+".sig"))
	})

	t.Run("MissingExpClaim", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "1",
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		assert.True(t, IsExpired(tok))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.True(t, IsExpired(""))
	})
}

func TestExpiresAt(t *testing.T) {
	deadline := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	got, err := ExpiresAt(signedToken(t, deadline))
	require.NoError(t, err)
	assert.True(t, got.Equal(deadline), "got %v, want %v", got, deadline)

	_, err = ExpiresAt("broken")
	assert.Error(t, err)
}
