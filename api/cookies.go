package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/pawsy/sessiond/identity"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// CookieConfig sets the lifetimes of the auth cookie pair. The refresh
// cookie must outlive the access cookie: it is the recovery credential when
// the access token is gone.
type CookieConfig struct {
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

// DefaultCookieConfig matches the storefront defaults: one hour for access,
// seven days for refresh.
var DefaultCookieConfig = CookieConfig{
	AccessMaxAge:  time.Hour,
	RefreshMaxAge: 7 * 24 * time.Hour,
}

// writeAuthCookies sets both auth cookies from the token pair.
func (a *API) writeAuthCookies(w http.ResponseWriter, r *http.Request, pair *identity.TokenPair) {
	secure := requestIsSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.cookies.AccessMaxAge.Seconds()),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.cookies.RefreshMaxAge.Seconds()),
	})
}

// clearAuthCookies expires both auth cookies.
func clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	secure := requestIsSecure(r)
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
		})
	}
}

func accessTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(accessCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func refreshTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
