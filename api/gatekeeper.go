package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/pawsy/sessiond/token"
)

// RouteConfig is the gatekeeper's path policy.
type RouteConfig struct {
	// PublicEntryPoints are paths that authenticated callers are bounced
	// away from, toward LandingPath.
	PublicEntryPoints []string
	// ProtectedPrefixes require authentication.
	ProtectedPrefixes []string
	// BypassPrefixes skip the gatekeeper entirely.
	BypassPrefixes []string
	// LoginPath receives unauthenticated callers, with the original path in
	// CallbackParam.
	LoginPath     string
	LandingPath   string
	CallbackParam string
}

// DefaultRouteConfig mirrors the storefront layout.
var DefaultRouteConfig = RouteConfig{
	PublicEntryPoints: []string{"/", "/login"},
	ProtectedPrefixes: []string{"/products", "/cart", "/checkout"},
	BypassPrefixes:    []string{"/api", "/_next", "/favicon"},
	LoginPath:         "/login",
	LandingPath:       "/products",
	CallbackParam:     "callbackUrl",
}

type verdict int

const (
	verdictAllow verdict = iota
	verdictRedirect
)

type decision struct {
	verdict  verdict
	location string
}

// bypass reports whether the path is exempt from gatekeeping: API routes
// and static assets.
func (c RouteConfig) bypass(path string) bool {
	for _, prefix := range c.BypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	// Paths with an extension are static assets.
	return strings.Contains(path, ".")
}

// decide is the pure allow/redirect policy over the request facts. It has no
// side effects and consults no state beyond its arguments, so every request
// is evaluated fresh.
func (c RouteConfig) decide(path string, authenticated bool) decision {
	for _, p := range c.PublicEntryPoints {
		if path == p {
			if authenticated {
				return decision{verdict: verdictRedirect, location: c.LandingPath}
			}
			return decision{verdict: verdictAllow}
		}
	}

	for _, prefix := range c.ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			if !authenticated {
				q := url.Values{}
				q.Set(c.CallbackParam, path)
				return decision{verdict: verdictRedirect, location: c.LoginPath + "?" + q.Encode()}
			}
			return decision{verdict: verdictAllow}
		}
	}

	return decision{verdict: verdictAllow}
}

// Gatekeeper is the per-request authorization middleware. It reads the
// cookie pair presented on this request, attempts at most one silent refresh
// when the access token has gone stale, and either forwards the request or
// redirects. The only response mutations besides the redirect are the cookie
// writes from a refresh attempt; nothing is cached across requests.
func (a *API) Gatekeeper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if a.routes.bypass(path) {
			next.ServeHTTP(w, r)
			return
		}

		authenticated := false
		if accessToken := accessTokenFromRequest(r); accessToken != "" {
			if !token.IsExpired(accessToken) {
				authenticated = true
			} else {
				authenticated = a.refreshOnce(w, r)
			}
		}

		d := a.routes.decide(path, authenticated)
		if d.verdict == verdictRedirect {
			http.Redirect(w, r, d.location, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// refreshOnce exchanges the refresh cookie for a new pair, exactly once for
// this request. Success rewrites the cookie pair; failure clears it and the
// caller is treated as unauthenticated for this request.
func (a *API) refreshOnce(w http.ResponseWriter, r *http.Request) bool {
	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		clearAuthCookies(w, r)
		return false
	}

	pair, err := a.gateway.Refresh(r.Context(), refreshToken)
	if err != nil {
		a.logger.Info("silent refresh failed", "path", r.URL.Path, "error", err)
		clearAuthCookies(w, r)
		return false
	}

	a.writeAuthCookies(w, r, pair)
	return true
}
