package rbac

import "errors"

// Action is a CRUD verb matched against the permission catalog.
// Values are case-sensitive and must match the catalog exactly.
type Action string

const (
	ActionSelect Action = "SELECT"
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Valid reports whether the action is one of the four catalog verbs
func (a Action) Valid() bool {
	switch a {
	case ActionSelect, ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Table is a guarded resource table name
type Table string

const (
	TableTestaments Table = "testaments"
	TableVerses     Table = "verses"
)

// ContextRole is a role granted within a named context
type ContextRole struct {
	Context string
	Role    string
}

// RoleAssignment is the full set of roles held by a user: one primary
// role plus zero or more context-scoped roles, ordered with the primary
// first and context roles sorted by context name.
type RoleAssignment struct {
	Primary string
	Context []ContextRole
}

// Names returns all role names in assignment order. Duplicates are
// preserved; the batch translation query deduplicates server-side.
func (ra RoleAssignment) Names() []string {
	names := make([]string, 0, 1+len(ra.Context))
	names = append(names, ra.Primary)
	for _, cr := range ra.Context {
		names = append(names, cr.Role)
	}
	return names
}

// Pipeline sentinel errors. The gate maps each to its HTTP response.
var (
	ErrUserNotFound            = errors.New("user not found")
	ErrRoleIDsNotFound         = errors.New("role ids not found")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)
