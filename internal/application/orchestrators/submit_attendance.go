package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/audit"
	"rollcall/internal/domain/lock"
	"rollcall/internal/domain/person"
)

// DefaultSubmitWait bounds how long a submission waits for the per-key
// critical section before giving up.
const DefaultSubmitWait = 5 * time.Second

// SubmitRosterStore defines the roster store interface needed by Submit.
type SubmitRosterStore interface {
	ListActive(ctx context.Context) ([]person.Person, error)
}

// SubmitRecordStore defines the record store interface needed by Submit.
type SubmitRecordStore interface {
	Append(ctx context.Context, records []attendance.Record) error
	ExistsForKey(ctx context.Context, date string, session attendance.Session) (bool, error)
	DeleteForKey(ctx context.Context, date string, session attendance.Session) (int, error)
}

// SubmitLockStore defines the lock store interface needed by Submit.
type SubmitLockStore interface {
	Get(ctx context.Context, date string, session attendance.Session) (lock.Entry, bool, error)
	Upsert(ctx context.Context, value lock.Entry) error
}

// SubmitAuditStore defines the audit store interface needed by Submit.
type SubmitAuditStore interface {
	Save(ctx context.Context, event audit.Event) error
}

// SubmitAttendanceInput carries one complete mark set for a (date, session).
type SubmitAttendanceInput struct {
	Draft attendance.Draft
	Actor account.Account
}

// SubmitAttendanceDeps holds dependencies for SubmitAttendance.
type SubmitAttendanceDeps struct {
	RosterStore SubmitRosterStore
	RecordStore SubmitRecordStore
	LockStore   SubmitLockStore
	AuditStore  SubmitAuditStore // optional: nil skips audit logging
	Keys        *KeyedMutex
	SubmitWait  time.Duration    // optional: DefaultSubmitWait when zero
	Now         func() time.Time // optional: time.Now when nil
}

// ExecuteSubmitAttendance validates and commits a full mark set as a
// single unit. Preconditions are checked in order, first failure wins:
// roster coverage, actor permission, lock state, prior submission.
// Records are written before the lock is flipped, so a crash between the
// two writes never loses marks: the existing records are the commit
// marker and block a second non-admin submit on their own.
// PRE: input.Draft is a complete mark set built by the caller
// POST: On success all records are persisted and the session is locked
// INVARIANT: At most one record per (date, session, person) from any
// sequence of calls, including concurrent ones
func ExecuteSubmitAttendance(ctx context.Context, input SubmitAttendanceInput, deps SubmitAttendanceDeps) (attendance.CommitResult, error) {
	draft := input.Draft
	if err := draft.Validate(); err != nil {
		return attendance.CommitResult{}, err
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	wait := deps.SubmitWait
	if wait <= 0 {
		wait = DefaultSubmitWait
	}

	// Same-key submissions are serialized; different keys proceed in
	// parallel. The wait is bounded so an abandoned submission cannot
	// queue operators behind it indefinitely.
	key := draft.Date + "|" + string(draft.Session)
	if !deps.Keys.TryLock(key, wait) {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: %w", draft.Date, draft.Session, attendance.ErrSubmitBusy)
	}
	defer deps.Keys.Unlock(key)

	// Precondition 1: marks cover exactly the active roster as of now.
	roster, err := deps.RosterStore.ListActive(ctx)
	if err != nil {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: load roster: %w", draft.Date, draft.Session, err)
	}
	onRoster := make(map[int64]bool, len(roster))
	for _, p := range roster {
		onRoster[p.ID] = true
		if _, ok := draft.Marks[p.ID]; !ok {
			return attendance.CommitResult{}, fmt.Errorf("%s %s: no mark for %s (id %d): %w",
				draft.Date, draft.Session, p.Name, p.ID, attendance.ErrIncompleteMarks)
		}
	}
	for id := range draft.Marks {
		if !onRoster[id] {
			return attendance.CommitResult{}, fmt.Errorf("%s %s: person %d: %w",
				draft.Date, draft.Session, id, attendance.ErrUnknownPerson)
		}
	}

	// Precondition 2: operators may only submit their bound session.
	if !input.Actor.CanSubmit(draft.Session) {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: %s may not submit this session: %w",
			draft.Date, draft.Session, input.Actor.Username, attendance.ErrPermissionDenied)
	}

	// Precondition 3: the lock flag blocks everyone but admins.
	entry, found, err := deps.LockStore.Get(ctx, draft.Date, draft.Session)
	if err != nil {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: read lock: %w", draft.Date, draft.Session, err)
	}
	if found && entry.Locked && !input.Actor.IsAdmin() {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: %w", draft.Date, draft.Session, attendance.ErrLockConflict)
	}

	// Precondition 4: existing records block non-admins regardless of the
	// lock flag. This is what makes a crash between record-write and
	// lock-write safe: the records alone mark the session as submitted.
	exists, err := deps.RecordStore.ExistsForKey(ctx, draft.Date, draft.Session)
	if err != nil {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: check prior submission: %w", draft.Date, draft.Session, err)
	}
	if exists && !input.Actor.IsAdmin() {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: %w", draft.Date, draft.Session, attendance.ErrDuplicateSubmission)
	}

	// Commit: records first, lock second.
	ids := make([]int64, 0, len(draft.Marks))
	for id := range draft.Marks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	markedAt := now()
	records := make([]attendance.Record, 0, len(ids))
	summary := attendance.NewSummary()
	for _, id := range ids {
		st := draft.Marks[id]
		records = append(records, attendance.Record{
			ID:       uuid.New().String(),
			Date:     draft.Date,
			Session:  draft.Session,
			PersonID: id,
			Status:   st,
			MarkedBy: input.Actor.ID,
			MarkedAt: markedAt,
		})
		summary[st]++
	}

	// Admin resubmission replaces the prior set. The delete and append run
	// under the same key mutex, so no reader observes a half-swapped key,
	// and the unique (date, session, person) index stays satisfiable.
	replaced := 0
	if exists {
		replaced, err = deps.RecordStore.DeleteForKey(ctx, draft.Date, draft.Session)
		if err != nil {
			return attendance.CommitResult{}, fmt.Errorf("%s %s: clear prior submission: %w", draft.Date, draft.Session, err)
		}
	}

	if err := deps.RecordStore.Append(ctx, records); err != nil {
		return attendance.CommitResult{}, fmt.Errorf("%s %s: write records: %w", draft.Date, draft.Session, err)
	}

	if err := deps.LockStore.Upsert(ctx, lock.Entry{
		Date:      draft.Date,
		Session:   draft.Session,
		Locked:    true,
		UpdatedBy: input.Actor.ID,
		UpdatedAt: markedAt,
	}); err != nil {
		// Records are already durable; the session still counts as
		// submitted via precondition 4. Surface the failure so the
		// caller knows the lock flag is lagging.
		slog.Error("submit_lock_write_failed", "date", draft.Date, "session", draft.Session, "error", err.Error())
		return attendance.CommitResult{}, fmt.Errorf("%s %s: records written but lock write failed: %w", draft.Date, draft.Session, err)
	}

	if deps.AuditStore != nil {
		event := audit.NewEvent(input.Actor.ID, input.Actor.Username, input.Actor.Role, audit.CategoryAttendance, audit.ActionSubmit).
			WithKey(draft.Date, string(draft.Session)).
			WithDescription(fmt.Sprintf("submitted %d marks", len(records)))
		if exists {
			event = event.WithSeverity(audit.SeverityWarning).
				WithDescription(fmt.Sprintf("replaced %d prior records with %d marks", replaced, len(records)))
		}
		if err := deps.AuditStore.Save(ctx, event); err != nil {
			slog.Error("submit_audit_failed", "date", draft.Date, "session", draft.Session, "error", err.Error())
		}
	}

	slog.Info("attendance_submitted",
		"date", draft.Date,
		"session", string(draft.Session),
		"records", len(records),
		"actor", input.Actor.Username,
	)

	return attendance.CommitResult{
		Date:           draft.Date,
		Session:        draft.Session,
		RecordsWritten: len(records),
		Summary:        summary,
	}, nil
}
