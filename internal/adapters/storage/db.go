package storage

import (
	"database/sql"
	"fmt"
)

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created, WAL mode enabled
func InitDB(db *sql.DB) error {
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Enable foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create tables
	schema := `
	CREATE TABLE IF NOT EXISTS person (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS attendance_record (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		session TEXT NOT NULL,
		person_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		marked_by TEXT NOT NULL DEFAULT '',
		marked_at TEXT NOT NULL,
		FOREIGN KEY (person_id) REFERENCES person(id)
	);

	CREATE TABLE IF NOT EXISTS lock_entry (
		date TEXT NOT NULL,
		session TEXT NOT NULL,
		locked INTEGER NOT NULL DEFAULT 0,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (date, session)
	);

	CREATE TABLE IF NOT EXISTS account (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		bound_session TEXT,
		created_at TEXT NOT NULL,
		failed_logins INTEGER NOT NULL DEFAULT 0,
		locked_until TEXT
	);

	CREATE TABLE IF NOT EXISTS audit_event (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		category TEXT NOT NULL,
		action TEXT NOT NULL,
		severity TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_name TEXT NOT NULL DEFAULT '',
		actor_role TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		session TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS outbox_entry (
		id TEXT PRIMARY KEY,
		action_type TEXT NOT NULL,
		dedupe_key TEXT,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 5,
		last_attempted_at TEXT,
		created_at TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Backstop for the ledger's no-duplicate invariant: one record per
	// (date, session, person). The ledger serializes submissions itself;
	// this index catches anything that slips past it.
	indexes := `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_record_key
		ON attendance_record(date, session, person_id);
	CREATE INDEX IF NOT EXISTS idx_record_person ON attendance_record(person_id);
	CREATE INDEX IF NOT EXISTS idx_record_date ON attendance_record(date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_person_active_name
		ON person(lower(name)) WHERE active = 1;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_dedupe
		ON outbox_entry(dedupe_key) WHERE dedupe_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_entry(status);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_event(timestamp);
	`
	if _, err := db.Exec(indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
