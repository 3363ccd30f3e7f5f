// Package token signs and verifies the two JWT classes used by the auth
// subsystem. Each class (access, refresh) gets its own Issuer with an
// independent secret and lifetime.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalid covers bad signatures and malformed tokens.
	ErrInvalid = errors.New("token is invalid")
	// ErrExpired is returned for a well-signed token whose expiry has
	// passed. Callers must not treat it as a forgery.
	ErrExpired = errors.New("token has expired")
)

// Claims is the canonical claim schema shared by issuance and verification.
type Claims struct {
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token embedding the user identity and the configured expiry.
func (i *Issuer) Issue(userID uuid.UUID, email, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique per token so that two tokens minted for the same
			// user in the same second never collide.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses and validates a token. It distinguishes ErrExpired from
// ErrInvalid so that rotation can tell a stale-but-genuine refresh token
// apart from garbage.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	if !parsed.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalid
	}

	return claims, nil
}
