package server

import (
	"errors"
	"net/http"

	"github.com/tjfontaine/classroom-llm-gateway/internal/auth"
)

// SessionMiddleware binds the caller's session to the request context. The
// AuthContext is resolved lazily, at most once per request. A missing,
// invalid or expired token is an anonymous session, not an error.
func SessionMiddleware(codec *auth.TokenCodec, resolver *auth.ContextResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tok auth.SessionToken
			if raw := auth.ExtractSessionToken(r, cookieName); raw != "" {
				parsed, err := codec.Parse(raw)
				switch {
				case err == nil:
					tok = parsed
				case errors.Is(err, auth.ErrExpiredToken):
					AddLogField(r.Context(), "session", "expired")
				default:
					AddLogField(r.Context(), "session", "invalid")
				}
			}

			ctx := auth.WithMemo(r.Context(), auth.NewMemo(resolver, tok))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
