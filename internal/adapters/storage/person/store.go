package person

import (
	"context"

	domain "rollcall/internal/domain/person"
)

// Store persists roster state.
type Store interface {
	GetByID(ctx context.Context, id int64) (domain.Person, error)
	ListActive(ctx context.Context) ([]domain.Person, error)
	List(ctx context.Context) ([]domain.Person, error)
	Create(ctx context.Context, value domain.Person) (int64, error)
	Update(ctx context.Context, value domain.Person) error
	FindActiveByName(ctx context.Context, normalizedName string) (domain.Person, bool, error)
}
