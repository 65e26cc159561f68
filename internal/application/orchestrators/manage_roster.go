package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/audit"
	"rollcall/internal/domain/person"
)

// RosterAdminStore defines the roster store interface needed for edits.
type RosterAdminStore interface {
	GetByID(ctx context.Context, id int64) (person.Person, error)
	Create(ctx context.Context, value person.Person) (int64, error)
	Update(ctx context.Context, value person.Person) error
	FindActiveByName(ctx context.Context, normalizedName string) (person.Person, bool, error)
}

// AddPersonInput carries input for adding a roster entry.
type AddPersonInput struct {
	Name  string
	Actor account.Account
}

// RosterDeps holds dependencies for roster administration.
type RosterDeps struct {
	RosterStore RosterAdminStore
	AuditStore  SubmitAuditStore // optional: nil skips audit logging
}

// ExecuteAddPerson adds a new active person to the roster.
// PRE: Actor is an admin; Name is unique among active people (case-insensitive)
// POST: Person is persisted with a fresh stable ID
func ExecuteAddPerson(ctx context.Context, input AddPersonInput, deps RosterDeps) (person.Person, error) {
	if !input.Actor.IsAdmin() {
		return person.Person{}, fmt.Errorf("roster edits are admin-only: %w", attendance.ErrPermissionDenied)
	}

	p := person.Person{Name: strings.TrimSpace(input.Name), Active: true}
	if err := p.Validate(); err != nil {
		return person.Person{}, err
	}

	if _, taken, err := deps.RosterStore.FindActiveByName(ctx, person.NormalizedName(p.Name)); err != nil {
		return person.Person{}, fmt.Errorf("check name: %w", err)
	} else if taken {
		return person.Person{}, fmt.Errorf("%s: %w", p.Name, person.ErrNameTaken)
	}

	id, err := deps.RosterStore.Create(ctx, p)
	if err != nil {
		return person.Person{}, fmt.Errorf("create person: %w", err)
	}
	p.ID = id

	auditRosterChange(ctx, deps.AuditStore, input.Actor, audit.ActionCreate, p.ID, "added "+p.Name)
	slog.Info("roster_person_added", "person_id", p.ID, "name", p.Name, "actor", input.Actor.Username)
	return p, nil
}

// RenamePersonInput carries input for renaming a roster entry.
type RenamePersonInput struct {
	PersonID int64
	NewName  string
	Actor    account.Account
}

// ExecuteRenamePerson renames an existing person. History keeps the
// person ID, so past records follow the new name.
// PRE: Actor is an admin; NewName is unique among active people
// POST: Person row carries the new name
func ExecuteRenamePerson(ctx context.Context, input RenamePersonInput, deps RosterDeps) error {
	if !input.Actor.IsAdmin() {
		return fmt.Errorf("roster edits are admin-only: %w", attendance.ErrPermissionDenied)
	}

	p, err := deps.RosterStore.GetByID(ctx, input.PersonID)
	if err != nil {
		return err
	}

	newName := strings.TrimSpace(input.NewName)
	if other, taken, err := deps.RosterStore.FindActiveByName(ctx, person.NormalizedName(newName)); err != nil {
		return fmt.Errorf("check name: %w", err)
	} else if taken && other.ID != p.ID {
		return fmt.Errorf("%s: %w", newName, person.ErrNameTaken)
	}

	oldName := p.Name
	p.Name = newName
	if err := p.Validate(); err != nil {
		return err
	}
	if err := deps.RosterStore.Update(ctx, p); err != nil {
		return fmt.Errorf("rename person: %w", err)
	}

	auditRosterChange(ctx, deps.AuditStore, input.Actor, audit.ActionUpdate, p.ID,
		fmt.Sprintf("renamed %s to %s", oldName, newName))
	slog.Info("roster_person_renamed", "person_id", p.ID, "name", newName, "actor", input.Actor.Username)
	return nil
}

// SetPersonActiveInput carries input for activating/deactivating a person.
type SetPersonActiveInput struct {
	PersonID int64
	Active   bool
	Actor    account.Account
}

// ExecuteSetPersonActive soft-deletes or restores a person. Deactivation
// never removes history; the person simply stops appearing on the
// roster future submissions must cover.
// PRE: Actor is an admin
// POST: Person's active flag carries the requested state
func ExecuteSetPersonActive(ctx context.Context, input SetPersonActiveInput, deps RosterDeps) error {
	if !input.Actor.IsAdmin() {
		return fmt.Errorf("roster edits are admin-only: %w", attendance.ErrPermissionDenied)
	}

	p, err := deps.RosterStore.GetByID(ctx, input.PersonID)
	if err != nil {
		return err
	}
	if p.Active == input.Active {
		return nil
	}

	// Reactivation must not collide with a name added in the meantime.
	if input.Active {
		if other, taken, err := deps.RosterStore.FindActiveByName(ctx, person.NormalizedName(p.Name)); err != nil {
			return fmt.Errorf("check name: %w", err)
		} else if taken && other.ID != p.ID {
			return fmt.Errorf("%s: %w", p.Name, person.ErrNameTaken)
		}
	}

	p.Active = input.Active
	if err := deps.RosterStore.Update(ctx, p); err != nil {
		return fmt.Errorf("update person: %w", err)
	}

	desc := "deactivated " + p.Name
	if input.Active {
		desc = "reactivated " + p.Name
	}
	auditRosterChange(ctx, deps.AuditStore, input.Actor, audit.ActionUpdate, p.ID, desc)
	slog.Info("roster_person_active_changed", "person_id", p.ID, "active", input.Active, "actor", input.Actor.Username)
	return nil
}

func auditRosterChange(ctx context.Context, store SubmitAuditStore, actor account.Account, action audit.Action, personID int64, desc string) {
	if store == nil {
		return
	}
	event := audit.NewEvent(actor.ID, actor.Username, actor.Role, audit.CategoryRoster, action).
		WithResource(strconv.FormatInt(personID, 10)).
		WithDescription(desc)
	if err := store.Save(ctx, event); err != nil {
		slog.Error("roster_audit_failed", "person_id", personID, "error", err.Error())
	}
}
