package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements create the contact and message tables. All use
// IF NOT EXISTS so they can be re-applied.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		oid          TEXT PRIMARY KEY,
		uid          INTEGER NOT NULL DEFAULT 0,
		source       TEXT    NOT NULL DEFAULT '',
		phone        TEXT    NOT NULL DEFAULT '',
		name         TEXT    NOT NULL DEFAULT '',
		peer         TEXT    NOT NULL DEFAULT '',
		status       TEXT    NOT NULL DEFAULT '',
		last_seen    TEXT    NOT NULL DEFAULT '',
		verification TEXT    NOT NULL DEFAULT '',
		verified     INTEGER NOT NULL DEFAULT 0,
		created      TEXT    NOT NULL,
		updated      TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(phone)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_uid ON contacts(uid)`,

	`CREATE TABLE IF NOT EXISTS messages (
		oid         TEXT PRIMARY KEY,
		telegram_id TEXT NOT NULL DEFAULT '',
		peer        TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL DEFAULT '',
		direction   TEXT NOT NULL DEFAULT '',
		text        TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT '',
		date        TEXT NOT NULL DEFAULT '',
		sent        TEXT NOT NULL DEFAULT '',
		created     TEXT NOT NULL,
		updated     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_peer ON messages(peer, telegram_id)`,
}

// migrate brings the schema to schemaVersion.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return tx.Commit()
}
