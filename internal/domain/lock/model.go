package lock

import (
	"errors"
	"time"

	"rollcall/internal/domain/attendance"
)

// Entry is the durable submission flag for one (date, session). Exactly
// one logical entry exists per key; absence means unlocked.
type Entry struct {
	Date      string // YYYY-MM-DD
	Session   attendance.Session
	Locked    bool
	UpdatedBy string // account ID of the last writer
	UpdatedAt time.Time
}

// Validate checks if the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns error if validation fails, nil otherwise
func (e *Entry) Validate() error {
	if !attendance.ValidDate(e.Date) {
		return attendance.ErrInvalidDate
	}
	if !attendance.ValidSession(e.Session) {
		return attendance.ErrInvalidSession
	}
	if e.UpdatedAt.IsZero() {
		return errors.New("updated_at must be set")
	}
	return nil
}
