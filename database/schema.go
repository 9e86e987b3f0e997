package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"imagecleanse/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion changes only for incompatible layouts. Additive columns go
// through columnMigrations instead.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

type columnMigration struct {
	table      string
	column     string
	definition string
}

var columnMigrations = []columnMigration{
	{table: "images", column: "orientation", definition: "INTEGER NOT NULL DEFAULT 1"},
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if err := s.createSchema(ctx); err != nil {
			return err
		}
	} else {
		var version int
		if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if version != schemaVersion {
			return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild the catalog)",
				ErrSchemaMismatch, version, schemaVersion, s.path)
		}
	}

	for _, m := range columnMigrations {
		if err := s.ensureColumn(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// ensureColumn adds a column that older catalogs lack.
func (s *Store) ensureColumn(ctx context.Context, m columnMigration) error {
	var present bool
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = ?", m.table)
	if err := s.db.QueryRowContext(ctx, query, m.column).Scan(&present); err != nil {
		return fmt.Errorf("check for %s.%s column: %w", m.table, m.column, err)
	}
	if present {
		return nil
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.definition)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add %s.%s column: %w", m.table, m.column, err)
	}
	s.logger.Debug("added column to existing schema",
		logging.String("table", m.table),
		logging.String("column", m.column),
	)
	return nil
}
