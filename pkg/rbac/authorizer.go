package rbac

import (
	"context"
	"time"

	"github.com/lectio/canon/pkg/observability"
	"github.com/lectio/canon/pkg/storage"
)

// DefaultCheckTimeout bounds a single authorization evaluation
const DefaultCheckTimeout = 5 * time.Second

// Authorizer runs the role-resolution and permission pipeline for one
// request. It is stateless; all reads go through the caller's Querier.
type Authorizer struct {
	store        *Store
	logger       *observability.Logger
	checkTimeout time.Duration
}

// AuthorizerOption customizes an Authorizer
type AuthorizerOption func(*Authorizer)

// WithCheckTimeout overrides the per-check deadline
func WithCheckTimeout(d time.Duration) AuthorizerOption {
	return func(a *Authorizer) {
		if d > 0 {
			a.checkTimeout = d
		}
	}
}

// NewAuthorizer creates an Authorizer over the given store
func NewAuthorizer(store *Store, logger *observability.Logger, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		store:        store,
		logger:       logger,
		checkTimeout: DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize decides whether the user may perform action on table.
// Returns nil on success and one of the pipeline sentinels
// (ErrUserNotFound, ErrRoleIDsNotFound, ErrInsufficientPermissions) or a
// wrapped database error on failure. A failed check is final: nothing
// is retried.
func (a *Authorizer) Authorize(ctx context.Context, q storage.Querier, userID string, action Action, table Table) error {
	ctx, cancel := context.WithTimeout(ctx, a.checkTimeout)
	defer cancel()

	assignment, err := a.store.UserRoles(ctx, q, userID)
	if err != nil {
		return err
	}

	roleIDs, err := a.store.RoleIDsByName(ctx, q, assignment.Names())
	if err != nil {
		return err
	}

	allowed, err := a.store.HasPermission(ctx, q, roleIDs, action, table)
	if err != nil {
		return err
	}
	if !allowed {
		a.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"action":  string(action),
			"table":   string(table),
			"roles":   assignment.Names(),
		}).Debug("permission denied")
		return ErrInsufficientPermissions
	}
	return nil
}
