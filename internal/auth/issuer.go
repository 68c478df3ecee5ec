package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued credential stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Credential is the result of a successful login.
type Credential struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"-"`
}

// Issuer signs credentials for display names.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIssuer creates an Issuer. A non-positive ttl falls back to DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration, issuer string) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs a credential binding displayName and an expiry.
func (i *Issuer) Issue(displayName string) (Credential, error) {
	if displayName == "" {
		return Credential{}, fmt.Errorf("%w: username is required", ErrInvalidIdentity)
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Username: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("sign token: %w", err)
	}

	return Credential{Token: token, Username: displayName, ExpiresAt: expiresAt}, nil
}
