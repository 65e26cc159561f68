package audit

import (
	"time"

	"github.com/google/uuid"
)

// Category represents the type of audit event.
type Category string

const (
	CategoryRoster     Category = "roster"
	CategoryAttendance Category = "attendance"
	CategoryLock       Category = "lock"
	CategorySecurity   Category = "security"
	CategorySystem     Category = "system"
)

// Action represents the action that occurred.
type Action string

const (
	ActionSubmit Action = "submit"
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionLogin  Action = "login"
	ActionExport Action = "export"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event represents a single audit log entry. Lock overrides and
// resubmissions must always land here so the history stays attributable.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Category    Category  `json:"category"`
	Action      Action    `json:"action"`
	Severity    Severity  `json:"severity"`
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	ActorRole   string    `json:"actor_role"`
	Date        string    `json:"date"`    // attendance date the event concerns, if any
	Session     string    `json:"session"` // attendance session the event concerns, if any
	ResourceID  string    `json:"resource_id"`
	Description string    `json:"description"`
}

// NewEvent creates a new audit event with the current timestamp.
// PRE: actorID and action are non-empty
// POST: Returns an Event with the current timestamp and provided fields
func NewEvent(actorID, actorName, actorRole string, category Category, action Action) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Category:  category,
		Action:    action,
		Severity:  SeverityInfo,
		ActorID:   actorID,
		ActorName: actorName,
		ActorRole: actorRole,
	}
}

// WithSeverity sets the severity level.
// PRE: s is valid severity
// POST: Event severity is updated
func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

// WithKey sets the (date, session) the event concerns.
// PRE: date is YYYY-MM-DD, session is a valid session name
// POST: Event key fields are populated
func (e Event) WithKey(date, session string) Event {
	e.Date = date
	e.Session = session
	return e
}

// WithResource sets the affected resource ID.
// PRE: resourceID is non-empty
// POST: Event resource field is populated
func (e Event) WithResource(resourceID string) Event {
	e.ResourceID = resourceID
	return e
}

// WithDescription sets the event description.
// PRE: description is non-empty
// POST: Event description is set
func (e Event) WithDescription(desc string) Event {
	e.Description = desc
	return e
}
