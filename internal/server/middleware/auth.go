package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gosuda/helpdesk/internal/auth"
)

// APIKeyVerifier checks a raw API key.
// *auth.KeyVerifier satisfies this interface.
type APIKeyVerifier interface {
	Verify(rawKey string) error
}

// Auth accepts either a bearer JWT signed with jwtSecret or a configured
// X-API-Key. API keys authenticate as admin. keys may be nil.
func Auth(jwtSecret string, keys APIKeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try Bearer token first.
			if tok := extractBearer(r); tok != "" {
				ctx, ok := authenticateJWT(r.Context(), tok, jwtSecret)
				if ok {
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Try API key.
			if key := r.Header.Get("X-API-Key"); key != "" && keys != nil {
				if err := keys.Verify(key); err == nil {
					ctx := context.WithValue(r.Context(), ContextKeySubject, "api-key")
					ctx = context.WithValue(ctx, ContextKeyUserRole, auth.RoleAdmin)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

func authenticateJWT(ctx context.Context, tokenStr, secret string) (context.Context, bool) {
	claims, err := auth.ValidateToken(secret, tokenStr)
	if err != nil || claims.Role == "" {
		return ctx, false
	}

	ctx = context.WithValue(ctx, ContextKeySubject, claims.Subject)
	ctx = context.WithValue(ctx, ContextKeyUserRole, claims.Role)
	return ctx, true
}
