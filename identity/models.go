package identity

import "time"

// Credentials are the login inputs. They are never persisted.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is an immutable snapshot of the authenticated identity. It is replaced
// wholesale on login or refresh, never partially mutated.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Image     string `json:"image"`
}

// Name returns the display name derived from the user's first and last name.
func (u *User) Name() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// TokenPair is the bearer credential pair issued by the identity service.
// ExpiresAt is derived once at issuance and only changes on a new refresh.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ExpiresInMins int    `json:"expiresInMins,omitempty"`
}

type loginResponse struct {
	User
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken  string `json:"refreshToken"`
	ExpiresInMins int    `json:"expiresInMins,omitempty"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
