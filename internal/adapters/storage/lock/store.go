package lock

import (
	"context"

	domainAttendance "rollcall/internal/domain/attendance"
	domain "rollcall/internal/domain/lock"
)

// Store persists lock entries, one per (date, session).
type Store interface {
	// Get returns the entry for the key. The second return is false when
	// no entry exists, which callers treat as unlocked.
	Get(ctx context.Context, date string, session domainAttendance.Session) (domain.Entry, bool, error)

	// Upsert writes the entry, updating in place when a row for the key
	// already exists. Calling it repeatedly with the same key leaves
	// exactly one row.
	Upsert(ctx context.Context, value domain.Entry) error

	// ListByDate returns all entries for a day.
	ListByDate(ctx context.Context, date string) ([]domain.Entry, error)
}
