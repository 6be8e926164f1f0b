package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one versioned schema step applied inside a transaction.
type migration struct {
	Version     string
	Description string
	Statements  []string
}

var migrations = []migration{
	{
		Version:     "001",
		Description: "create key value table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS kv (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	},
	{
		Version:     "002",
		Description: "index keys by update time",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv (updated_at)`,
		},
	},
}

// Migrate applies pending schema migrations and records them in
// schema_migrations.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	if _, err := cp.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to initialize version table: %w", err)
	}

	for _, m := range migrations {
		applied, err := cp.isApplied(ctx, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = cp.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %s (%s): %w", m.Version, m.Description, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the latest applied migration version, or "" when
// none has been applied.
func (cp *ConnectionPool) SchemaVersion(ctx context.Context) (string, error) {
	var version sql.NullString
	err := cp.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	return version.String, nil
}

func (cp *ConnectionPool) isApplied(ctx context.Context, version string) (bool, error) {
	var count int
	err := cp.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", version, err)
	}
	return count > 0, nil
}
