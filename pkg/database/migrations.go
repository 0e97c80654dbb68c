package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/iar/pkg/observability"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema history in version order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					password VARCHAR(128) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS user_permissions (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					codename VARCHAR(100) NOT NULL,
					PRIMARY KEY (user_id, codename)
				);

				CREATE TABLE IF NOT EXISTS user_lookups (
					user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
					scheme VARCHAR(255) NOT NULL,
					identifier VARCHAR(255) NOT NULL,
					UNIQUE (scheme, identifier)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create assets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS assets (
					id UUID PRIMARY KEY,
					name VARCHAR(255),
					department VARCHAR(255),
					purpose VARCHAR(255),
					purpose_other TEXT,
					owner VARCHAR(50),
					private BOOLEAN NOT NULL DEFAULT FALSE,
					research BOOLEAN,
					personal_data BOOLEAN,
					data_subject TEXT[] NOT NULL DEFAULT '{}',
					data_category TEXT[] NOT NULL DEFAULT '{}',
					recipients_outside_uni VARCHAR(8),
					recipients_outside_uni_description VARCHAR(255),
					recipients_outside_eea VARCHAR(8),
					recipients_outside_eea_description VARCHAR(255),
					retention VARCHAR(255),
					risk_type TEXT[] NOT NULL DEFAULT '{}',
					risk_type_additional TEXT,
					storage_location VARCHAR(255),
					storage_format TEXT[] NOT NULL DEFAULT '{}',
					paper_storage_security TEXT[] NOT NULL DEFAULT '{}',
					digital_storage_security TEXT[] NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_assets_department ON assets(department);
				CREATE INDEX IF NOT EXISTS idx_assets_created_at ON assets(created_at);
				CREATE INDEX IF NOT EXISTS idx_assets_active ON assets(deleted_at) WHERE deleted_at IS NULL;
			`,
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations.
// Each migration runs in its own transaction.
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}
		logger.WithField("version", m.Version).Infof("Running migration: %s", m.Description)

		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		m.Version, m.Description,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
