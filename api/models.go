package api

import "github.com/pawsy/sessiond/identity"

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /auth/login. Tokens travel in the
// cookie pair, not the body.
type LoginResponse struct {
	User *identity.User `json:"user"`
}

// LogoutResponse is returned from POST /auth/logout.
type LogoutResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
