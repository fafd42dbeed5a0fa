package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/lectio/canon/pkg/contextkeys"
	"github.com/lectio/canon/pkg/httputil"
	"github.com/lectio/canon/pkg/observability"
	"github.com/lectio/canon/pkg/storage"
)

// GetSession retrieves the bound database session from context
func GetSession(ctx context.Context) (*storage.Session, bool) {
	sess, ok := ctx.Value(contextkeys.SessionKey).(*storage.Session)
	return sess, ok
}

// Session checks out a dedicated database connection for the request,
// binds the caller's identity to it as Postgres session variables, and
// releases it when the handler returns. Must run after Auth.
func Session(binder *storage.Binder, metrics *observability.Metrics, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "Unauthenticated")
				return
			}

			sess, err := binder.Bind(r.Context(), identity.UserID, identity.Email)
			if err != nil {
				if errors.Is(err, storage.ErrConnectionTimeout) {
					metrics.DBAcquireTimeouts.Inc()
					logger.WithError(err).Warn("connection pool exhausted")
					httputil.WriteServiceUnavailable(w, "connection timeout")
					return
				}
				logger.WithError(err).Error("failed to bind session")
				httputil.WriteInternalError(w)
				return
			}
			defer sess.Release()

			ctx := contextkeys.WithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
