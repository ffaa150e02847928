// Package auth fabricates session tokens for whitebox probing and installs
// them into a harness session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoSecret is returned when a token is requested but no signing secret
// was configured.
var ErrNoSecret = errors.New("no JWT signing secret configured")

// Roles understood by the API under test.
const (
	RoleUser   = "user"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Identity is who a forged token claims to be.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Claims is the payload the API under test puts in its auth-token cookie.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Forger signs HS256 tokens with a shared secret.
type Forger struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewForger creates a Forger. An empty secret yields ErrNoSecret.
func NewForger(secret string, ttl time.Duration) (*Forger, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Forger{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Forge returns a signed token for id. A missing UserID gets a random UUID
// and a missing Role defaults to RoleUser.
func (f *Forger) Forge(id Identity) (string, error) {
	if id.UserID == "" {
		id.UserID = uuid.NewString()
	}
	if id.Role == "" {
		id.Role = RoleUser
	}

	now := f.now()
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(f.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(f.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse validates a token signed with secret and returns its claims.
func Parse(secret, tokenString string) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no userId claim")
	}
	return claims, nil
}
