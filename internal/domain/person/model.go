package person

import (
	"errors"
	"strings"
)

// MaxNameLength bounds user-editable names.
const MaxNameLength = 120

// Domain errors.
var (
	ErrEmptyName = errors.New("name cannot be empty")
	ErrNameTaken = errors.New("an active person with this name already exists")
	ErrNotFound  = errors.New("person not found")
)

// Person is one roster entry. IDs are stable and never reused; a person
// referenced by attendance history is only ever deactivated, not removed.
type Person struct {
	ID     int64
	Name   string
	Active bool
}

// Validate checks if the Person has valid data.
// PRE: Person struct is populated
// POST: Returns error if validation fails, nil otherwise
func (p *Person) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > MaxNameLength {
		return errors.New("name cannot exceed 120 characters")
	}
	return nil
}

// NormalizedName returns the case-folded form used for uniqueness checks
// among active people.
func NormalizedName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
