package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/adapters/storage"
	domain "rollcall/internal/domain/account"
	domainAttendance "rollcall/internal/domain/attendance"
)

const timestampLayout = time.RFC3339Nano

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Compile-time check that *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new account store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectColumns = "id, username, display_name, password_hash, role, bound_session, created_at, failed_logins, locked_until"

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the account or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM account WHERE id = ?", id)
	return scanAccount(row)
}

// GetByUsername retrieves an Account by username.
// PRE: username is non-empty
// POST: Returns the account or domain.ErrNotFound
func (s *SQLiteStore) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM account WHERE username = ?", username)
	return scanAccount(row)
}

// Save persists an Account (insert or update).
// PRE: value has been validated
// POST: Account is persisted
func (s *SQLiteStore) Save(ctx context.Context, value domain.Account) error {
	var boundSession any
	if value.BoundSession != "" {
		boundSession = string(value.BoundSession)
	}
	var lockedUntil any
	if !value.LockedUntil.IsZero() {
		lockedUntil = value.LockedUntil.Format(timestampLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account (id, username, display_name, password_hash, role, bound_session, created_at, failed_logins, locked_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			username=excluded.username,
			display_name=excluded.display_name,
			password_hash=excluded.password_hash,
			role=excluded.role,
			bound_session=excluded.bound_session,
			failed_logins=excluded.failed_logins,
			locked_until=excluded.locked_until`,
		value.ID, value.Username, value.DisplayName, value.PasswordHash, value.Role,
		boundSession, value.CreatedAt.Format(timestampLayout), value.FailedLogins, lockedUntil)
	return err
}

// List returns all accounts ordered by username.
// PRE: none
// POST: Returns accounts, never nil
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM account ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	a, err := scanAccountRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, err
}

func scanAccountRow(sc scanner) (domain.Account, error) {
	var a domain.Account
	var boundSession, lockedUntil sql.NullString
	var createdAt string
	err := sc.Scan(&a.ID, &a.Username, &a.DisplayName, &a.PasswordHash, &a.Role,
		&boundSession, &createdAt, &a.FailedLogins, &lockedUntil)
	if err != nil {
		return domain.Account{}, err
	}
	if boundSession.Valid {
		a.BoundSession = domainAttendance.Session(boundSession.String)
	}
	if a.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return domain.Account{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if lockedUntil.Valid {
		if a.LockedUntil, err = time.Parse(timestampLayout, lockedUntil.String); err != nil {
			return domain.Account{}, fmt.Errorf("failed to parse locked_until: %w", err)
		}
	}
	return a, nil
}
