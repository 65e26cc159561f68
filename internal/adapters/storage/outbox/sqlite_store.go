package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rollcall/internal/adapters/storage"
	domain "rollcall/internal/domain/outbox"
)

const timestampLayout = time.RFC3339Nano

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Compile-time check that *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new outbox store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert adds a new entry, skipping duplicates by dedupe key.
// PRE: value has been validated
// POST: Returns true when inserted, false when the dedupe key already existed
func (s *SQLiteStore) Insert(ctx context.Context, value domain.Entry) (bool, error) {
	var dedupeKey any
	if value.DedupeKey != "" {
		dedupeKey = value.DedupeKey
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox_entry (id, action_type, dedupe_key, payload, status, attempts, max_attempts, created_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING`,
		value.ID, value.ActionType, dedupeKey, value.Payload, value.Status,
		value.Attempts, value.MaxAttempts, value.CreatedAt.Format(timestampLayout), value.ErrorMessage)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update persists attempt state for an existing entry.
// PRE: value.ID references an existing entry
// POST: Status/attempt fields are updated
func (s *SQLiteStore) Update(ctx context.Context, value domain.Entry) error {
	var lastAttempted any
	if !value.LastAttemptedAt.IsZero() {
		lastAttempted = value.LastAttemptedAt.Format(timestampLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_entry SET status = ?, attempts = ?, last_attempted_at = ?, error_message = ? WHERE id = ?`,
		value.Status, value.Attempts, lastAttempted, value.ErrorMessage, value.ID)
	return err
}

// ListRetryable returns entries eligible for a send attempt, oldest first.
// PRE: limit > 0
// POST: Returns pending/retrying/failed entries under their attempt cap
func (s *SQLiteStore) ListRetryable(ctx context.Context, limit int) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action_type, dedupe_key, payload, status, attempts, max_attempts, last_attempted_at, created_at, error_message
		 FROM outbox_entry
		 WHERE status IN (?, ?, ?) AND attempts < max_attempts
		 ORDER BY created_at
		 LIMIT ?`,
		domain.StatusPending, domain.StatusRetrying, domain.StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		var dedupeKey, lastAttempted sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ActionType, &dedupeKey, &e.Payload, &e.Status,
			&e.Attempts, &e.MaxAttempts, &lastAttempted, &createdAt, &e.ErrorMessage); err != nil {
			return nil, err
		}
		if dedupeKey.Valid {
			e.DedupeKey = dedupeKey.String
		}
		if lastAttempted.Valid {
			if e.LastAttemptedAt, err = time.Parse(timestampLayout, lastAttempted.String); err != nil {
				return nil, fmt.Errorf("failed to parse last_attempted_at: %w", err)
			}
		}
		if e.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
