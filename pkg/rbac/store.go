package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/lectio/canon/pkg/storage"
)

// Store runs the catalog queries behind the authorization pipeline.
// Every method takes the Querier to run on, so callers can route reads
// through a request's bound connection and have RLS see the session
// identity.
type Store struct{}

// NewStore creates a Store
func NewStore() *Store {
	return &Store{}
}

// UserRoles resolves the roles assigned to a user. Returns
// ErrUserNotFound when no user row exists.
func (s *Store) UserRoles(ctx context.Context, q storage.Querier, userID string) (RoleAssignment, error) {
	var (
		primary    string
		contextRaw []byte
	)
	err := q.QueryRowContext(ctx,
		`SELECT primary_role, context_roles FROM users WHERE id = $1`,
		userID,
	).Scan(&primary, &contextRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleAssignment{}, ErrUserNotFound
	}
	if err != nil {
		return RoleAssignment{}, fmt.Errorf("resolve user roles: %w", err)
	}

	assignment := RoleAssignment{Primary: primary}
	if len(contextRaw) > 0 {
		byContext := map[string]string{}
		if err := json.Unmarshal(contextRaw, &byContext); err != nil {
			return RoleAssignment{}, fmt.Errorf("decode context roles: %w", err)
		}
		contexts := make([]string, 0, len(byContext))
		for c := range byContext {
			contexts = append(contexts, c)
		}
		sort.Strings(contexts)
		for _, c := range contexts {
			assignment.Context = append(assignment.Context, ContextRole{Context: c, Role: byContext[c]})
		}
	}
	return assignment, nil
}

// RoleIDsByName translates role names to catalog IDs in one batch query.
// Partial matches are accepted; only a fully empty result is a failure
// (ErrRoleIDsNotFound).
func (s *Store) RoleIDsByName(ctx context.Context, q storage.Querier, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, ErrRoleIDsNotFound
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id FROM roles WHERE name = ANY($1::text[])`,
		pq.Array(names),
	)
	if err != nil {
		return nil, fmt.Errorf("translate role names: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrRoleIDsNotFound
	}
	return ids, nil
}

// HasPermission reports whether any of the given roles grants the action
// on the table. Action and table travel as bind parameters, never
// interpolated into the query text.
func (s *Store) HasPermission(ctx context.Context, q storage.Querier, roleIDs []string, action Action, table Table) (bool, error) {
	var allowed bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1
			FROM role_permissions rp
			JOIN permissions p ON p.id = rp.permission_id
			WHERE rp.role_id = ANY($1::uuid[])
			  AND p.action = $2
			  AND $3 = ANY(rp.table_names)
		)`,
		pq.Array(roleIDs), string(action), string(table),
	).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("evaluate permission: %w", err)
	}
	return allowed, nil
}
