package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers every token verification failure: bad
	// signature, expiry, malformed payload, missing claims.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMalformedCredential indicates the Authorization header did not
	// carry a bearer token at all.
	ErrMalformedCredential = errors.New("malformed authorization header")
)

// TokenCodec issues and verifies HS256 bearer tokens. The signing key is
// the base64-decoded configured secret.
type TokenCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenCodec builds a codec from a base64-encoded secret.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode jwt secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("jwt secret empty")
	}
	return &TokenCodec{key: key, ttl: ttl, now: time.Now}, nil
}

// WithNow overrides the clock. Used by tests.
func (c *TokenCodec) WithNow(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Issue signs a token for the identity. Subject is the user email and a
// "role" claim carries the role. Each token gets a unique jti so that
// tokens issued within the same second still differ.
func (c *TokenCodec) Issue(id Identity) (string, error) {
	now := c.now().UTC()
	claims := jwt.MapClaims{
		"sub":  id.Email,
		"role": id.Role,
		"jti":  uuid.New().String(),
		"iat":  now.Unix(),
		"exp":  now.Add(c.ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.key)
}

// Verify parses and validates a token and returns the embedded identity.
// All failures collapse into ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now() }))
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	email, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if email == "" || !ValidRole(role) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Email: email, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
// The scheme comparison is case-insensitive.
func BearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMalformedCredential
	}
	return parts[1], nil
}

// ResolveBearer resolves an Authorization header into an identity.
func (c *TokenCodec) ResolveBearer(header string) (Identity, error) {
	tok, err := BearerToken(header)
	if err != nil {
		return Identity{}, err
	}
	return c.Verify(tok)
}
