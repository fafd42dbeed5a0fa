package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full DDL for the service: accounts, the permission
// catalog, the guarded resource tables, and the row-level security
// policies that read the session variables bound per request.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		primary_role  TEXT NOT NULL DEFAULT 'user',
		context_roles JSONB NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS roles (
		id   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS permissions (
		id     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		action TEXT NOT NULL UNIQUE
			CHECK (action IN ('SELECT', 'INSERT', 'UPDATE', 'DELETE'))
	)`,

	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id       UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		table_names   TEXT[] NOT NULL DEFAULT '{}',
		PRIMARY KEY (role_id, permission_id)
	)`,

	`CREATE TABLE IF NOT EXISTS testaments (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title      TEXT NOT NULL,
		content    JSONB NOT NULL DEFAULT '{}',
		members    JSONB NOT NULL DEFAULT '{}',
		created_by UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS verses (
		id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		testament_id UUID NOT NULL REFERENCES testaments(id) ON DELETE CASCADE,
		subtitle     TEXT NOT NULL,
		content      JSONB NOT NULL DEFAULT '{}',
		subscribers  JSONB NOT NULL DEFAULT '{}',
		created_by   UUID NOT NULL REFERENCES users(id),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// RLS policies read the identity bound by the session binder.
	// current_setting(..., true) yields NULL instead of erroring when a
	// connection was never bound, which denies by default.
	`ALTER TABLE testaments ENABLE ROW LEVEL SECURITY`,
	`DROP POLICY IF EXISTS testaments_member_access ON testaments`,
	`CREATE POLICY testaments_member_access ON testaments
		USING (
			created_by::text = current_setting('canon.user_id', true)
			OR members ? current_setting('canon.user_id', true)
		)
		WITH CHECK (created_by::text = current_setting('canon.user_id', true))`,

	`ALTER TABLE verses ENABLE ROW LEVEL SECURITY`,
	`DROP POLICY IF EXISTS verses_subscriber_access ON verses`,
	`CREATE POLICY verses_subscriber_access ON verses
		USING (
			created_by::text = current_setting('canon.user_id', true)
			OR subscribers ? current_setting('canon.user_id', true)
		)
		WITH CHECK (created_by::text = current_setting('canon.user_id', true))`,
}

// seed installs the built-in role and permission catalog. Statements are
// idempotent so migration can run on every start.
var seed = []string{
	`INSERT INTO roles (name) VALUES ('user'), ('creator'), ('admin')
		ON CONFLICT (name) DO NOTHING`,

	`INSERT INTO permissions (action)
		VALUES ('SELECT'), ('INSERT'), ('UPDATE'), ('DELETE')
		ON CONFLICT (action) DO NOTHING`,

	// user: read only. creator: read + write. admin: everything.
	`INSERT INTO role_permissions (role_id, permission_id, table_names)
		SELECT r.id, p.id, ARRAY['testaments', 'verses']
		FROM roles r, permissions p
		WHERE (r.name = 'user' AND p.action = 'SELECT')
		   OR (r.name = 'creator' AND p.action IN ('SELECT', 'INSERT', 'UPDATE'))
		   OR (r.name = 'admin')
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
}

// Migrate applies the schema and seeds the permission catalog
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	for _, stmt := range seed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}
	return nil
}
