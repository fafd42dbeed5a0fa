package rbac

import (
	"errors"
	"net/http"
	"time"

	"github.com/lectio/canon/pkg/audit"
	"github.com/lectio/canon/pkg/httputil"
	"github.com/lectio/canon/pkg/middleware"
	"github.com/lectio/canon/pkg/observability"
)

// Gate guards resource routes by evaluating the caller's roles against
// the permission catalog for one action on one table.
type Gate struct {
	authorizer *Authorizer
	metrics    *observability.Metrics
	audit      audit.Logger
	logger     *observability.Logger
}

// NewGate creates an authorization gate
func NewGate(authorizer *Authorizer, metrics *observability.Metrics, auditLog audit.Logger, logger *observability.Logger) *Gate {
	return &Gate{
		authorizer: authorizer,
		metrics:    metrics,
		audit:      auditLog,
		logger:     logger,
	}
}

// Require wraps a handler so it only runs when the caller holds the
// permission for action on table. Checks run in fixed order and the
// first failure is final:
//
//	no identity   -> 401 Unauthenticated (no storage access)
//	no session    -> 400 Invalid session
//	pipeline deny -> 403 with the specific reason
//	storage error -> 500, reason never leaked
func (g *Gate) Require(action Action, table Table) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			identity, ok := middleware.GetIdentity(r.Context())
			if !ok {
				g.deny(w, "", action, table, http.StatusUnauthorized, "Unauthenticated", start)
				return
			}

			sess, ok := middleware.GetSession(r.Context())
			if !ok {
				g.deny(w, identity.UserID, action, table, http.StatusBadRequest, "Invalid session", start)
				return
			}

			err := g.authorizer.Authorize(r.Context(), sess.Conn(), identity.UserID, action, table)
			switch {
			case err == nil:
				g.metrics.RecordAuthzDecision(string(action), string(table), "allow", time.Since(start))
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUserNotFound):
				g.deny(w, identity.UserID, action, table, http.StatusForbidden, "Forbidden: User not found", start)
			case errors.Is(err, ErrRoleIDsNotFound):
				g.deny(w, identity.UserID, action, table, http.StatusForbidden, "Forbidden: Role IDs not found", start)
			case errors.Is(err, ErrInsufficientPermissions):
				g.deny(w, identity.UserID, action, table, http.StatusForbidden, "Forbidden: Insufficient permissions", start)
			default:
				g.logger.WithError(err).WithFields(map[string]interface{}{
					"user_id": identity.UserID,
					"action":  string(action),
					"table":   string(table),
				}).Error("authorization check failed")
				g.metrics.RecordAuthzDecision(string(action), string(table), "error", time.Since(start))
				httputil.WriteInternalError(w)
			}
		})
	}
}

func (g *Gate) deny(w http.ResponseWriter, userID string, action Action, table Table, status int, reason string, start time.Time) {
	g.metrics.RecordAuthzDecision(string(action), string(table), "deny", time.Since(start))
	g.audit.Record(audit.Event{
		Type:   audit.EventAccessDenied,
		UserID: userID,
		Reason: reason,
		Details: map[string]string{
			"action": string(action),
			"table":  string(table),
		},
	})
	httputil.WriteErrorMessage(w, status, reason)
}
