// Package token issues and verifies the signed bearer credentials carried by
// API clients. A credential embeds a denormalized snapshot of the holder's
// capability keys taken at issuance time, so most authorization checks
// complete without touching the store or the cache.
//
// The snapshot is deliberately stale: a capability revoked after issuance
// remains usable through an unexpired credential, until re-login or refresh.
// The guard only falls back to live resolution when the snapshot lacks a
// requested capability, never to re-check one it contains.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired indicates the credential is past its expiry.
	ErrExpired = errors.New("token: credential expired")
	// ErrMalformed indicates the credential failed structural or signature
	// verification.
	ErrMalformed = errors.New("token: credential malformed")
)

// Claims is the payload embedded in issued credentials.
type Claims struct {
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	UserType    string    `json:"userType"`
	IsAdmin     bool      `json:"isAdmin"`
	Permissions []string  `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the embedded snapshot contains the capability
// key.
func (c *Claims) HasPermission(key string) bool {
	for _, p := range c.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

// IssueParams carries everything embedded into a new credential.
type IssueParams struct {
	UserID   uuid.UUID
	Email    string
	UserType string
	// IsAdmin is the denormalized admin-tier flag at issuance time.
	IsAdmin bool
	// Permissions is the resolved capability snapshot at issuance time,
	// sorted capability keys.
	Permissions []string
}

// Codec signs and verifies credentials with a shared HMAC secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  func() time.Time
}

// NewCodec constructs a codec. ttl defaults to 24h when non-positive.
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "havenlist",
		clock:  time.Now,
	}
}

// TTL returns the credential lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a credential for the subject.
func (c *Codec) Issue(params IssueParams) (string, error) {
	now := c.clock()
	claims := &Claims{
		UserID:      params.UserID,
		Email:       params.Email,
		UserType:    params.UserType,
		IsAdmin:     params.IsAdmin,
		Permissions: params.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    c.issuer,
			Subject:   params.UserID.String(),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a raw credential, returning its claims.
func (c *Codec) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.clock() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}
