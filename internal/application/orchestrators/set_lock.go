package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/audit"
	"rollcall/internal/domain/lock"
)

// SetLockInput carries input for the lock override orchestrator.
type SetLockInput struct {
	Date    string
	Session attendance.Session
	Locked  bool
	Actor   account.Account
}

// SetLockDeps holds dependencies for SetLock.
type SetLockDeps struct {
	LockStore   SubmitLockStore
	RecordStore SubmitRecordStore
	AuditStore  SubmitAuditStore // optional: nil skips audit logging
	Now         func() time.Time // optional: time.Now when nil
}

// ExecuteSetLock flips the lock flag for a (date, session). This is the
// deliberate admin override path; the ledger locks sessions itself on
// commit. Upserts in place, so repeated calls leave exactly one entry.
// PRE: Actor is an admin
// POST: One lock entry exists for the key with the requested state
func ExecuteSetLock(ctx context.Context, input SetLockInput, deps SetLockDeps) error {
	if !attendance.ValidDate(input.Date) {
		return fmt.Errorf("%s %s: %w", input.Date, input.Session, attendance.ErrInvalidDate)
	}
	if !attendance.ValidSession(input.Session) {
		return fmt.Errorf("%s %s: %w", input.Date, input.Session, attendance.ErrInvalidSession)
	}
	if !input.Actor.IsAdmin() {
		return fmt.Errorf("%s %s: lock overrides are admin-only: %w",
			input.Date, input.Session, attendance.ErrPermissionDenied)
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	// An unlock that reopens an already-submitted session is the audit
	// case the wardens care about; record it before anything changes.
	submitted := false
	if !input.Locked && deps.RecordStore != nil {
		var err error
		submitted, err = deps.RecordStore.ExistsForKey(ctx, input.Date, input.Session)
		if err != nil {
			return fmt.Errorf("%s %s: check prior submission: %w", input.Date, input.Session, err)
		}
	}

	if err := deps.LockStore.Upsert(ctx, lock.Entry{
		Date:      input.Date,
		Session:   input.Session,
		Locked:    input.Locked,
		UpdatedBy: input.Actor.ID,
		UpdatedAt: now(),
	}); err != nil {
		return fmt.Errorf("%s %s: write lock: %w", input.Date, input.Session, err)
	}

	if deps.AuditStore != nil {
		action := audit.ActionLock
		severity := audit.SeverityInfo
		desc := "locked by admin override"
		if !input.Locked {
			action = audit.ActionUnlock
			desc = "unlocked by admin override"
			if submitted {
				severity = audit.SeverityWarning
				desc = "reopened an already-submitted session"
			}
		}
		event := audit.NewEvent(input.Actor.ID, input.Actor.Username, input.Actor.Role, audit.CategoryLock, action).
			WithKey(input.Date, string(input.Session)).
			WithSeverity(severity).
			WithDescription(desc)
		if err := deps.AuditStore.Save(ctx, event); err != nil {
			slog.Error("set_lock_audit_failed", "date", input.Date, "session", string(input.Session), "error", err.Error())
		}
	}

	slog.Info("lock_override",
		"date", input.Date,
		"session", string(input.Session),
		"locked", input.Locked,
		"actor", input.Actor.Username,
	)
	return nil
}
