package token

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/family-budget-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is the subset of the backend's JWT claims the client cares about.
// The signature is never checked here: the client cannot verify it and only uses
// the values for display.
type Claims struct {
	UserID    string
	TokenType string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token's exp claim is in the past. Tokens without an
// exp claim never expire.
func (c Claims) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return NowTimeFunc().After(c.ExpiresAt)
}

// ParseClaims decodes the claims of a raw JWT without verifying its signature.
func ParseClaims(rawToken string) (Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return Claims{}, errors.ErrMalformedToken
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return Claims{}, errors.Wrapf(errors.ErrMalformedToken, "parse: %v", err)
	}

	mc, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, errors.Wrapf(errors.ErrMalformedToken, "error extracting claims")
	}

	claims := Claims{}
	claims.TokenType, _ = mc["token_type"].(string)
	claims.JTI, _ = mc["jti"].(string)

	switch uid := mc["user_id"].(type) {
	case string:
		claims.UserID = uid
	case float64:
		claims.UserID = fmt.Sprintf("%d", int64(uid))
	}

	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}
