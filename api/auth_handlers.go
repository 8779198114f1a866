package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pawsy/sessiond/identity"
)

// maxAuthBodySize bounds auth request bodies.
const maxAuthBodySize = 1 << 16

func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T
	body := http.MaxBytesReader(w, r.Body, maxSize)
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return v, false
	}
	io.Copy(io.Discard, body)
	return v, true
}

// Login handles POST /auth/login. On success both auth cookies are set and
// the user snapshot is returned.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, pair, err := a.gateway.Login(r.Context(), identity.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		a.logger.Info("login failed", "username", req.Username, "error", err)
		mapError(w, err)
		return
	}

	a.writeAuthCookies(w, r, pair)
	a.logger.Info("login succeeded", "username", user.Username)
	writeJSON(w, http.StatusOK, LoginResponse{User: user})
}

// Logout handles POST /auth/logout. The upstream call is best-effort; the
// cookies are cleared unconditionally.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	a.gateway.Logout(r.Context())
	clearAuthCookies(w, r)
	writeJSON(w, http.StatusOK, LogoutResponse{Success: true})
}

// Me handles GET /auth/me. An invalid session clears the cookie pair so the
// client does not keep presenting a dead credential.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	accessToken := accessTokenFromRequest(r)
	if accessToken == "" {
		writeError(w, http.StatusUnauthorized, "missing access token")
		return
	}

	user, err := a.gateway.Me(r.Context(), accessToken)
	if err != nil {
		clearAuthCookies(w, r)
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Refresh handles POST /auth/refresh: it exchanges the refresh cookie for a
// new pair and rewrites both cookies. A failed exchange clears the pair.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	pair, err := a.gateway.Refresh(r.Context(), refreshToken)
	if err != nil {
		a.logger.Info("token refresh failed", "error", err)
		clearAuthCookies(w, r)
		mapError(w, err)
		return
	}

	a.writeAuthCookies(w, r, pair)
	writeJSON(w, http.StatusOK, pair)
}
