// Package auth resolves who is calling and in which class, from a signed
// session token and the identity store.
package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "tutor_session"

// ExtractBearerToken extracts the session token from the Authorization header
func ExtractBearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <token>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return strings.TrimSpace(parts[1]), nil
}

// ExtractSessionToken returns the bearer token if present, else the named
// cookie's value. An empty string means no session.
func ExtractSessionToken(r *http.Request, cookieName string) string {
	if tok, err := ExtractBearerToken(r); err == nil && tok != "" {
		return tok
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
