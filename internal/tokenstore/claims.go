package tokenstore

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when a token carries no sub claim.
var ErrNoSubject = errors.New("token has no subject")

// Subject returns the sub claim of a JWT without verifying its signature.
// The result is only fit for building request paths; the server re-derives
// identity from the verified credential.
func Subject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}
