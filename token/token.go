// Package token inspects bearer tokens for liveness. It decodes the JWT
// payload without verifying the signature: authenticity is delegated to the
// remote issuer, this is strictly an expiry check.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser()

// ExpiresAt returns the expiry deadline encoded in the token's exp claim.
func ExpiresAt(tokenStr string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

// IsExpired reports whether the token's exp claim is in the past.
// Unparsable tokens are treated as expired.
func IsExpired(tokenStr string) bool {
	exp, err := ExpiresAt(tokenStr)
	if err != nil {
		return true
	}
	return !time.Now().Before(exp)
}
