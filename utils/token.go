package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// BearerTokenExpiry extracts the `exp` claim from a portal bearer token.
// The portal signs tokens with its own secret, so the signature is NOT
// verified here; we only need the expiry to know when a stored session
// is stale.
func BearerTokenExpiry(token string) (time.Time, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return time.Time{}, errors.New("token is empty")
	}

	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}

	exp, ok := claims["exp"]
	if !ok {
		return time.Time{}, errors.New("token has no exp claim")
	}
	switch v := exp.(type) {
	case float64:
		return time.Unix(int64(v), 0), nil
	case int64:
		return time.Unix(v, 0), nil
	default:
		return time.Time{}, errors.New("unexpected exp claim type")
	}
}

// BearerTokenExpired reports whether the token's exp claim is in the past.
// Unparseable tokens are treated as expired.
func BearerTokenExpired(token string, now time.Time) bool {
	exp, err := BearerTokenExpiry(token)
	if err != nil {
		return true
	}
	return !exp.After(now)
}
