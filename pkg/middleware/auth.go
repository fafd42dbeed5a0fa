// Package middleware provides the request pipeline stages that run
// before resource handlers: identity resolution, database session
// binding, and login rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/lectio/canon/pkg/auth"
	"github.com/lectio/canon/pkg/contextkeys"
	"github.com/lectio/canon/pkg/httputil"
	"github.com/lectio/canon/pkg/observability"
)

// TokenCookieName is the fallback cookie checked when no Authorization
// header is present.
const TokenCookieName = "canon_token"

// GetIdentity retrieves the authenticated identity from context
func GetIdentity(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity, ok
}

// extractToken pulls the credential from the request. The Authorization
// header wins over the cookie when both are present.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Auth resolves the caller's identity from a bearer token and attaches
// it to the request context. Requests without a valid credential are
// rejected with 401 before any storage access.
func Auth(tokens *auth.TokenManager, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				httputil.WriteUnauthorized(w, "Unauthenticated")
				return
			}

			identity, err := tokens.Verify(token)
			if err != nil {
				// The response never distinguishes why verification
				// failed; the log does.
				logger.WithError(err).WithField("path", r.URL.Path).Debug("credential rejected")
				httputil.WriteUnauthorized(w, "Unauthenticated")
				return
			}

			ctx := contextkeys.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
