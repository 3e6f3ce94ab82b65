package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks the HMAC signature and expiry of backend tokens.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier returns nil when secret is empty; a nil verifier accepts
// every token.
func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret), now: time.Now}
}

// Verify parses token and returns its claims. An expired token yields ErrExpired.
func (v *TokenVerifier) Verify(token string) (*jwt.RegisteredClaims, error) {
	if v == nil {
		return nil, nil
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
