package token

import (
	"strings"

	"golang.org/x/oauth2"
)

// Storage keys. The names are shared with the browser client so a token written by one
// is readable by the other.
const (
	AccessTokenKey      = "token"
	RefreshTokenKey     = "refreshToken"
	SelectedFamilyIDKey = "selectedFamilyId"
)

// SessionKeys lists every key cleared on logout.
var SessionKeys = []string{AccessTokenKey, RefreshTokenKey, SelectedFamilyIDKey}

// Pair is the access/refresh credential pair issued by the login endpoint.
type Pair struct {
	// Access is the short-lived bearer token sent on every authenticated request.
	Access string `json:"access"`
	// Refresh is only ever sent to the refresh endpoint.
	Refresh string `json:"refresh,omitempty"`
}

// LoginRequest is the body of POST /users/token/.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /users/token/refresh/.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse is returned by the refresh endpoint. Refresh is only set when the
// server rotates refresh tokens, which this client ignores.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Valid reports whether the pair carries both credentials.
func (p Pair) Valid() bool {
	return strings.TrimSpace(p.Access) != "" && strings.TrimSpace(p.Refresh) != ""
}

// OAuth2 converts the pair into an oauth2.Token so callers can use SetAuthHeader.
// Expiry comes from the access token's exp claim when it can be decoded.
func (p Pair) OAuth2() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  p.Access,
		RefreshToken: p.Refresh,
		TokenType:    "Bearer",
	}
	if claims, err := ParseClaims(p.Access); err == nil {
		t.Expiry = claims.ExpiresAt
	}
	return t
}
