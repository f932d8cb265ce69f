package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users, roles and users_roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					user_id UUID PRIMARY KEY,
					api_key TEXT NOT NULL UNIQUE,
					contact_name TEXT NOT NULL,
					created_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS roles (
					role_id BIGSERIAL PRIMARY KEY,
					role_name TEXT NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS users_roles (
					user_id UUID NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(role_id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, role_id)
				);

				INSERT INTO roles (role_name) VALUES ('public'), ('admin'), ('internal')
				ON CONFLICT (role_name) DO NOTHING;
			`,
		},
		{
			Version:     2,
			Description: "Create workers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workers (
					worker_id BIGSERIAL PRIMARY KEY,
					host TEXT NOT NULL,
					status TEXT NOT NULL,
					scheduler_port INT NOT NULL DEFAULT 0,
					dashboard_address TEXT NOT NULL DEFAULT '',
					created_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     3,
			Description: "Create requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS requests (
					request_id BIGSERIAL PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(user_id),
					dataset TEXT NOT NULL,
					product TEXT NOT NULL,
					query JSONB NOT NULL,
					format TEXT NOT NULL DEFAULT 'netcdf',
					status TEXT NOT NULL DEFAULT 'PENDING',
					priority INT NOT NULL DEFAULT 0,
					estimate_size_bytes BIGINT NOT NULL DEFAULT 0,
					worker_id BIGINT REFERENCES workers(worker_id),
					created_on TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					last_update TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					fail_reason TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_requests_user_id ON requests(user_id);
				CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
				CREATE INDEX IF NOT EXISTS idx_requests_admission
					ON requests(status, priority, created_on);
			`,
		},
		{
			Version:     4,
			Description: "Create downloads table",
			SQL: `
				CREATE TABLE IF NOT EXISTS downloads (
					download_id BIGSERIAL PRIMARY KEY,
					request_id BIGINT NOT NULL UNIQUE REFERENCES requests(request_id),
					location_path TEXT NOT NULL,
					download_uri TEXT NOT NULL DEFAULT '',
					size_bytes BIGINT NOT NULL,
					created_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// Migrate applies all pending migrations in a schema_migrations-tracked
// sequence.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range Migrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`,
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
