package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/keylet/keylet/pkg/jwtx"
	"github.com/keylet/keylet/pkg/slogx"
)

// AuthnMiddleware verifies the access token and injects the account identity
// into the request context. The token is read from the accessToken cookie,
// falling back to a Bearer Authorization header for non-browser clients.
func AuthnMiddleware(v *jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw := accessTokenFromRequest(r)
			if raw == "" {
				WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("access token verification failed", "err", err)
				WriteError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	}
	return ""
}

func contextWithAuth(ctx context.Context, c *jwtx.Claims) context.Context {
	return context.WithValue(ctx, CtxKeyAccountID, c.Subject)
}
