package outbox

import (
	"context"

	domain "rollcall/internal/domain/outbox"
)

// Store persists outbox entries.
type Store interface {
	// Insert adds a new entry. When the entry carries a dedupe key that
	// already exists, the insert is silently skipped and (false, nil) is
	// returned.
	Insert(ctx context.Context, value domain.Entry) (bool, error)

	// Update persists attempt state for an existing entry.
	Update(ctx context.Context, value domain.Entry) error

	// ListRetryable returns entries eligible for a send attempt, oldest
	// first.
	ListRetryable(ctx context.Context, limit int) ([]domain.Entry, error)
}
