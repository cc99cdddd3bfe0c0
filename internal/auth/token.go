package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 24 * time.Hour

var (
	// ErrInvalidToken is returned for malformed or badly signed tokens.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrExpiredToken is returned for tokens past their expiry.
	ErrExpiredToken = errors.New("session token expired")
)

// SessionToken is the client-held session state: only the identity and the
// selected tenant. Everything else is recomputed from the store per request.
type SessionToken struct {
	IdentityID int64
	TenantID   int64
}

type sessionClaims struct {
	TenantID int64 `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session tokens with HS256.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec creates a codec. A non-positive ttl uses DefaultSessionTTL.
func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the session.
func (c *TokenCodec) Issue(tok SessionToken) (string, error) {
	if tok.IdentityID == 0 {
		return "", fmt.Errorf("cannot issue a session token without an identity")
	}

	now := c.now()
	claims := sessionClaims{
		TenantID: tok.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(tok.IdentityID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its session.
func (c *TokenCodec) Parse(tokenString string) (SessionToken, error) {
	if tokenString == "" {
		return SessionToken{}, ErrInvalidToken
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return SessionToken{}, ErrExpiredToken
		}
		return SessionToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return SessionToken{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return SessionToken{IdentityID: id, TenantID: claims.TenantID}, nil
}
