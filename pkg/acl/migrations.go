package acl

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all ACL migrations, in order. The DDL targets
// PostgreSQL; engine tests build an equivalent SQLite schema by hand.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					label VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(name)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create role_groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_groups (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					group_name VARCHAR(255) NOT NULL,
					UNIQUE(role_id, group_name)
				);

				CREATE INDEX idx_role_groups_group_name ON role_groups(group_name);
			`,
		},
		{
			Version:     3,
			Description: "Create access_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS access_grants (
					id BIGSERIAL PRIMARY KEY,
					target_type VARCHAR(100) NOT NULL,
					target_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(target_type, target_id, role_id)
				);

				CREATE INDEX idx_access_grants_target ON access_grants(target_type, target_id);
				CREATE INDEX idx_access_grants_role_id ON access_grants(role_id);
			`,
		},
		{
			Version:     4,
			Description: "Create access_grant_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS access_grant_permissions (
					id BIGSERIAL PRIMARY KEY,
					grant_id BIGINT NOT NULL REFERENCES access_grants(id) ON DELETE CASCADE,
					namespace VARCHAR(64) NOT NULL,
					name VARCHAR(64) NOT NULL,
					UNIQUE(grant_id, namespace, name)
				);

				CREATE INDEX idx_access_grant_permissions_grant_id ON access_grant_permissions(grant_id);
				CREATE INDEX idx_access_grant_permissions_permission ON access_grant_permissions(namespace, name);
			`,
		},
	}
}

// RunMigrations executes all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS acl_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM acl_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO acl_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
