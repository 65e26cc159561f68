package attendance

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the canonical storage format for attendance dates.
const DateLayout = "2006-01-02"

// Session identifies a named attendance window within a day.
type Session string

const (
	SessionMorning Session = "morning"
	SessionNight   Session = "night"
)

// Sessions lists every valid session in display order.
var Sessions = []Session{SessionMorning, SessionNight}

// Status is a single-mark attendance code. The short codes match the
// roll book the wardens keep (P, A, L, S, SCH/CLG, OI).
type Status string

const (
	StatusPresent Status = "P"
	StatusAbsent  Status = "A"
	StatusLeave   Status = "L"
	StatusSick    Status = "S"
	StatusCollege Status = "SCH/CLG"
	StatusOther   Status = "OI"
)

// Statuses lists every valid status in display order. Aggregations emit
// buckets in this order, zero-filled.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusLeave, StatusSick, StatusCollege, StatusOther}

// Domain errors for the submission path. Callers match with errors.Is;
// the ledger wraps these with the offending (date, session).
var (
	ErrInvalidDate         = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidSession      = errors.New("session must be morning or night")
	ErrInvalidStatus       = errors.New("status code is not recognised")
	ErrIncompleteMarks     = errors.New("marks do not cover the active roster")
	ErrUnknownPerson       = errors.New("marks include a person not on the active roster")
	ErrPermissionDenied    = errors.New("role is not allowed to perform this action")
	ErrLockConflict        = errors.New("session is locked for submissions")
	ErrDuplicateSubmission = errors.New("session has already been submitted")
	ErrSubmitBusy          = errors.New("another submission for this session is in progress")
)

// ValidSession reports whether s is one of the known sessions.
func ValidSession(s Session) bool {
	for _, v := range Sessions {
		if v == s {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is one of the known status codes.
func ValidStatus(s Status) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// ValidDate reports whether d parses as a YYYY-MM-DD calendar date.
func ValidDate(d string) bool {
	_, err := time.Parse(DateLayout, d)
	return err == nil
}

// MonthKey returns the YYYY-MM prefix of a stored date.
// PRE: d is a valid YYYY-MM-DD date
// POST: Returns the first seven characters
func MonthKey(d string) string {
	if len(d) < 7 {
		return d
	}
	return d[:7]
}

// Record is one durable attendance fact. The composite key
// (Date, Session, PersonID) is unique across the ledger.
type Record struct {
	ID       string
	Date     string // YYYY-MM-DD
	Session  Session
	PersonID int64
	Status   Status
	MarkedBy string // account ID of the submitter
	MarkedAt time.Time
}

// Validate checks if the Record has valid data.
// PRE: Record struct is populated
// POST: Returns error if validation fails, nil otherwise
func (r *Record) Validate() error {
	if !ValidDate(r.Date) {
		return ErrInvalidDate
	}
	if !ValidSession(r.Session) {
		return ErrInvalidSession
	}
	if r.PersonID <= 0 {
		return errors.New("record must reference a person")
	}
	if !ValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// Draft is a complete in-progress mark set for one (date, session),
// built by the caller and handed to the ledger in a single submit.
// The core holds no draft state between calls.
type Draft struct {
	Date    string
	Session Session
	Marks   map[int64]Status // person ID -> status
}

// Validate checks the draft's own shape. Roster coverage is checked by
// the ledger, which sees the live roster.
// PRE: Draft struct is populated
// POST: Returns error if validation fails, nil otherwise
func (d *Draft) Validate() error {
	if !ValidDate(d.Date) {
		return fmt.Errorf("%s %s: %w", d.Date, d.Session, ErrInvalidDate)
	}
	if !ValidSession(d.Session) {
		return fmt.Errorf("%s %s: %w", d.Date, d.Session, ErrInvalidSession)
	}
	if len(d.Marks) == 0 {
		return fmt.Errorf("%s %s: %w", d.Date, d.Session, ErrIncompleteMarks)
	}
	for id, st := range d.Marks {
		if !ValidStatus(st) {
			return fmt.Errorf("%s %s: person %d: %w", d.Date, d.Session, id, ErrInvalidStatus)
		}
	}
	return nil
}

// CommitResult reports a successful ledger commit.
type CommitResult struct {
	Date           string
	Session        Session
	RecordsWritten int
	Summary        map[Status]int // zero-filled over all statuses
}

// NewSummary returns a status->count map with every status present.
// POST: len(result) == len(Statuses), all values zero
func NewSummary() map[Status]int {
	m := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		m[s] = 0
	}
	return m
}
