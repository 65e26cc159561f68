package attendance

import (
	"context"

	domain "rollcall/internal/domain/attendance"
)

// Store persists attendance records. The table is append-oriented:
// records are only ever written by ledger commits, never updated in
// place. DeleteForKey exists solely for the admin resubmission path,
// which swaps a full key's record set under the submit mutex.
type Store interface {
	Append(ctx context.Context, records []domain.Record) error
	Query(ctx context.Context, filter Filter) ([]domain.Record, error)
	ExistsForKey(ctx context.Context, date string, session domain.Session) (bool, error)
	CountForKey(ctx context.Context, date string, session domain.Session) (int, error)
	DeleteForKey(ctx context.Context, date string, session domain.Session) (int, error)
}

// Filter carries query parameters. Zero values mean "no constraint".
type Filter struct {
	DateFrom string // inclusive YYYY-MM-DD
	DateTo   string // inclusive YYYY-MM-DD
	Session  domain.Session
	PersonID int64
}
