package attendance

import (
	"context"
	"fmt"
	"time"

	"rollcall/internal/adapters/storage"
	domain "rollcall/internal/domain/attendance"
)

const timestampLayout = time.RFC3339Nano

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Compile-time check that *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new attendance record store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append inserts a batch of records in one transaction.
// PRE: every record has been validated
// POST: All records are persisted, or none on error
func (s *SQLiteStore) Append(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attendance_record (id, date, session, person_id, status, marked_by, marked_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Date, string(r.Session), r.PersonID, string(r.Status), r.MarkedBy,
			r.MarkedAt.Format(timestampLayout))
		if err != nil {
			return fmt.Errorf("failed to append record for person %d: %w", r.PersonID, err)
		}
	}
	return tx.Commit()
}

// Query returns records matching the filter, ordered by date, session, person.
// PRE: filter date bounds, when set, are YYYY-MM-DD
// POST: Returns matching records, never nil
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]domain.Record, error) {
	query := `SELECT id, date, session, person_id, status, marked_by, marked_at
		FROM attendance_record WHERE 1=1`
	args := []any{}

	if filter.DateFrom != "" {
		query += " AND date >= ?"
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		query += " AND date <= ?"
		args = append(args, filter.DateTo)
	}
	if filter.Session != "" {
		query += " AND session = ?"
		args = append(args, string(filter.Session))
	}
	if filter.PersonID != 0 {
		query += " AND person_id = ?"
		args = append(args, filter.PersonID)
	}
	query += " ORDER BY date, session, person_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.Record{}
	for rows.Next() {
		var r domain.Record
		var session, status, markedAt string
		if err := rows.Scan(&r.ID, &r.Date, &session, &r.PersonID, &status, &r.MarkedBy, &markedAt); err != nil {
			return nil, err
		}
		r.Session = domain.Session(session)
		r.Status = domain.Status(status)
		if r.MarkedAt, err = time.Parse(timestampLayout, markedAt); err != nil {
			return nil, fmt.Errorf("failed to parse marked_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ExistsForKey reports whether any record exists for (date, session).
// Record existence is the ledger's commit marker, so this check, not the
// lock flag, is the authority on whether a session was submitted.
// PRE: date is YYYY-MM-DD, session is valid
// POST: Returns true iff at least one record exists
func (s *SQLiteStore) ExistsForKey(ctx context.Context, date string, session domain.Session) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM attendance_record WHERE date = ? AND session = ?)",
		date, string(session))
	var exists int
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists != 0, nil
}

// CountForKey returns the number of records for (date, session).
// PRE: date is YYYY-MM-DD, session is valid
// POST: Returns count >= 0
func (s *SQLiteStore) CountForKey(ctx context.Context, date string, session domain.Session) (int, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance_record WHERE date = ? AND session = ?",
		date, string(session))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteForKey removes every record for (date, session) and returns how
// many rows were deleted. Only the admin resubmission path calls this,
// under the submit mutex, immediately before appending the replacement
// set; the unique (date, session, person_id) index requires the old set
// to be gone before the new one lands.
// PRE: date is YYYY-MM-DD, session is valid
// POST: No records remain for the key
func (s *SQLiteStore) DeleteForKey(ctx context.Context, date string, session domain.Session) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM attendance_record WHERE date = ? AND session = ?",
		date, string(session))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
