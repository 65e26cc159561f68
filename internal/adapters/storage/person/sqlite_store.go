package person

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rollcall/internal/adapters/storage"
	domain "rollcall/internal/domain/person"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Compile-time check that *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new roster store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Person by its ID.
// PRE: id > 0
// POST: Returns the person or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (domain.Person, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, active FROM person WHERE id = ?", id)

	var p domain.Person
	var active int
	err := row.Scan(&p.ID, &p.Name, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Person{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Person{}, err
	}
	p.Active = active != 0
	return p, nil
}

// ListActive returns all active people ordered by name.
// PRE: none
// POST: Returns active roster entries, never nil
func (s *SQLiteStore) ListActive(ctx context.Context) ([]domain.Person, error) {
	return s.list(ctx, "SELECT id, name, active FROM person WHERE active = 1 ORDER BY name COLLATE NOCASE")
}

// List returns every person including deactivated ones.
// PRE: none
// POST: Returns all roster entries, never nil
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Person, error) {
	return s.list(ctx, "SELECT id, name, active FROM person ORDER BY name COLLATE NOCASE")
}

func (s *SQLiteStore) list(ctx context.Context, query string) ([]domain.Person, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	people := []domain.Person{}
	for rows.Next() {
		var p domain.Person
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &active); err != nil {
			return nil, err
		}
		p.Active = active != 0
		people = append(people, p)
	}
	return people, rows.Err()
}

// Create inserts a new person and returns the assigned ID.
// PRE: value has been validated
// POST: Person is persisted with a fresh ID
func (s *SQLiteStore) Create(ctx context.Context, value domain.Person) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO person (name, active) VALUES (?, ?)",
		value.Name, boolToInt(value.Active))
	if err != nil {
		return 0, fmt.Errorf("failed to insert person: %w", err)
	}
	return res.LastInsertId()
}

// Update persists name/active edits for an existing person.
// PRE: value.ID references an existing person
// POST: Person row is updated
func (s *SQLiteStore) Update(ctx context.Context, value domain.Person) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE person SET name = ?, active = ? WHERE id = ?",
		value.Name, boolToInt(value.Active), value.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindActiveByName looks up an active person by normalized name.
// PRE: normalizedName is lowercased and trimmed
// POST: Returns the match and true, or false when no active person has the name
func (s *SQLiteStore) FindActiveByName(ctx context.Context, normalizedName string) (domain.Person, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, active FROM person WHERE active = 1 AND lower(name) = ?", normalizedName)

	var p domain.Person
	var active int
	err := row.Scan(&p.ID, &p.Name, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Person{}, false, nil
	}
	if err != nil {
		return domain.Person{}, false, err
	}
	p.Active = active != 0
	return p, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
