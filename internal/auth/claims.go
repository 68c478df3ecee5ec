package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated is returned when a credential is missing, malformed,
	// signed with the wrong key or expired.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidIdentity is returned when a credential is requested for an
	// empty display name.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Claims is the payload carried by a relay credential.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}
