package account

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rollcall/internal/domain/attendance"
)

// Max length constants for user-editable fields.
const (
	MaxUsernameLength = 64
)

// Role constants. Operators are bound to exactly one session; admins
// (the wardens) can submit, relock and reopen any session.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleAdmin, RoleOperator}

// Domain errors
var (
	ErrEmptyUsername    = errors.New("username cannot be empty")
	ErrInvalidRole      = errors.New("role must be one of: admin, operator")
	ErrMissingSession   = errors.New("operator accounts must be bound to a session")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrWrongPassword    = errors.New("incorrect username or password")
	ErrAccountLocked    = errors.New("account is temporarily locked after failed logins")
	ErrNotFound         = errors.New("account not found")
)

// Account holds state for one login. Corresponds to the warden and
// per-session operator users of the paper system.
type Account struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Role         string
	BoundSession attendance.Session // set only for operators
	CreatedAt    time.Time
	FailedLogins int
	LockedUntil  time.Time
}

// Validate checks if the Account has valid data.
// PRE: Account struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Username) == "" {
		return ErrEmptyUsername
	}
	if len(a.Username) > MaxUsernameLength {
		return errors.New("username cannot exceed 64 characters")
	}
	if !isValidRole(a.Role) {
		return ErrInvalidRole
	}
	if a.Role == RoleOperator && !attendance.ValidSession(a.BoundSession) {
		return ErrMissingSession
	}
	if a.Role == RoleAdmin && a.BoundSession != "" {
		return errors.New("admin accounts must not be bound to a session")
	}
	return nil
}

// SetPassword hashes and stores a password using bcrypt with cost 12.
// PRE: plaintext is non-empty and >= 8 characters
// POST: PasswordHash is set to bcrypt hash
func (a *Account) SetPassword(plaintext string) error {
	if plaintext == "" {
		return ErrEmptyPassword
	}
	if len(plaintext) < 8 {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), 12)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
// PRE: PasswordHash is set
// INVARIANT: Account fields are not mutated
func (a *Account) CheckPassword(plaintext string) error {
	if a.PasswordHash == "" {
		return ErrWrongPassword
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plaintext)) != nil {
		return ErrWrongPassword
	}
	return nil
}

// IsLocked returns true if the account is currently locked out.
// INVARIANT: Account fields are not mutated
func (a *Account) IsLocked() bool {
	if a.LockedUntil.IsZero() {
		return false
	}
	return time.Now().Before(a.LockedUntil)
}

// RecordFailedLogin increments the failed login counter and locks the account after 5 failures.
// PRE: Account exists
// POST: FailedLogins incremented; LockedUntil set if >= 5 failures
func (a *Account) RecordFailedLogin() {
	a.FailedLogins++
	if a.FailedLogins >= 5 {
		a.LockedUntil = time.Now().Add(15 * time.Minute)
	}
}

// ResetFailedLogins clears the failed login counter and lock.
// PRE: Account exists
// POST: FailedLogins is 0, LockedUntil is zero
func (a *Account) ResetFailedLogins() {
	a.FailedLogins = 0
	a.LockedUntil = time.Time{}
}

// IsAdmin returns true if the account has admin role.
// INVARIANT: Account fields are not mutated
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanSubmit returns true if the account may submit the given session.
// Admins may submit any session; operators only their bound one.
// INVARIANT: Account fields are not mutated
func (a *Account) CanSubmit(session attendance.Session) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return a.Role == RoleOperator && a.BoundSession == session
}

func isValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
