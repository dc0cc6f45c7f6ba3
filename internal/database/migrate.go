package database

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed migrations/001_client_state.up.sql
var clientStateSQL string

var requiredTables = []string{
	"client_state",
}

// EnsureSchema creates the client state table when it is missing.
// The migration is idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasAllRequiredTables(ctx)
	if err != nil {
		return fmt.Errorf("check existing tables: %w", err)
	}

	if exists {
		db.log.Debug("database schema present")
		return nil
	}

	db.log.Info("database schema missing tables; applying client state migration")
	if _, err := db.Pool.Exec(ctx, clientStateSQL); err != nil {
		return fmt.Errorf("apply client state migration: %w", err)
	}

	exists, err = db.hasAllRequiredTables(ctx)
	if err != nil {
		return fmt.Errorf("re-check tables after migration: %w", err)
	}
	if !exists {
		return fmt.Errorf("schema initialization incomplete: required tables are still missing")
	}

	db.log.Info("database schema ensured")
	return nil
}

func (db *DB) hasAllRequiredTables(ctx context.Context) (bool, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name = ANY($1)
	`, requiredTables).Scan(&count)
	if err != nil {
		return false, err
	}

	return count == len(requiredTables), nil
}
