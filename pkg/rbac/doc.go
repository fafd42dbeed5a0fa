// Package rbac implements data-driven role-based access control.
//
// Roles, permissions, and their grants live in database tables rather
// than code, so operators can change what a role may do without a
// deploy. Each request is authorized by a fixed pipeline: resolve the
// user's role names, translate them to catalog IDs in one batch query,
// then test whether any of those roles grants the requested action on
// the requested table. All reads run on the request's bound connection
// so row-level security policies see the caller's identity.
package rbac
