package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/adapters/storage"
	domainAttendance "rollcall/internal/domain/attendance"
	domain "rollcall/internal/domain/lock"
)

const timestampLayout = time.RFC3339Nano

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Compile-time check that *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new lock entry store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the entry for (date, session).
// PRE: date is YYYY-MM-DD, session is valid
// POST: Returns (entry, true) when a row exists, (zero, false) otherwise
func (s *SQLiteStore) Get(ctx context.Context, date string, session domainAttendance.Session) (domain.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT date, session, locked, updated_by, updated_at FROM lock_entry WHERE date = ? AND session = ?",
		date, string(session))

	var e domain.Entry
	var sess, updatedAt string
	var locked int
	err := row.Scan(&e.Date, &sess, &locked, &e.UpdatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, false, nil
	}
	if err != nil {
		return domain.Entry{}, false, err
	}
	e.Session = domainAttendance.Session(sess)
	e.Locked = locked != 0
	if e.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return domain.Entry{}, false, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return e, true, nil
}

// Upsert writes the entry in place, keyed by (date, session).
// PRE: value has been validated
// POST: Exactly one row exists for the key, carrying value's state
func (s *SQLiteStore) Upsert(ctx context.Context, value domain.Entry) error {
	locked := 0
	if value.Locked {
		locked = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lock_entry (date, session, locked, updated_by, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(date, session) DO UPDATE SET
			locked=excluded.locked,
			updated_by=excluded.updated_by,
			updated_at=excluded.updated_at`,
		value.Date, string(value.Session), locked, value.UpdatedBy,
		value.UpdatedAt.Format(timestampLayout))
	return err
}

// ListByDate returns all entries for a day ordered by session.
// PRE: date is YYYY-MM-DD
// POST: Returns matching entries, never nil
func (s *SQLiteStore) ListByDate(ctx context.Context, date string) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT date, session, locked, updated_by, updated_at FROM lock_entry WHERE date = ? ORDER BY session",
		date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		var sess, updatedAt string
		var locked int
		if err := rows.Scan(&e.Date, &sess, &locked, &e.UpdatedBy, &updatedAt); err != nil {
			return nil, err
		}
		e.Session = domainAttendance.Session(sess)
		e.Locked = locked != 0
		if e.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
