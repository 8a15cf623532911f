package store

import (
	"context"
	"fmt"
	"log/slog"
)

// migration is a versioned list of statements run in one transaction.
// Version 1 is the base schema from schemaSQL.
type migration struct {
	version     int
	description string
	stmts       []string
}

// Append only; applied versions are never re-run.
var migrations = []migration{
	{version: 1, description: "base schema"},
	{
		version:     2,
		description: "index sections by section id and model",
		stmts:       []string{"CREATE INDEX IF NOT EXISTS idx_sections_lookup ON sections(section_id, model)"},
	},
}

// Migrate brings the schema_version table up to the last migration.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("store: applying migration", "version", m.version, "description", m.description)
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		m.version, m.description); err != nil {
		return err
	}
	return tx.Commit()
}
