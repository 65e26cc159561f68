package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/audit"
)

// AccountStoreForCreate defines the store interface needed by CreateAccount.
type AccountStoreForCreate interface {
	GetByUsername(ctx context.Context, username string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// CreateAccountInput carries input for the account creation orchestrator.
type CreateAccountInput struct {
	Username     string
	DisplayName  string
	Password     string
	Role         string
	BoundSession attendance.Session // required for operators
	Actor        account.Account    // zero Actor is allowed for bootstrap seeding
}

// CreateAccountDeps holds dependencies for CreateAccount.
type CreateAccountDeps struct {
	AccountStore AccountStoreForCreate
	AuditStore   SubmitAuditStore // optional: nil skips audit logging
}

// ExecuteCreateAccount creates a warden or operator login.
// PRE: Actor is an admin, or zero for first-run seeding
// POST: Account is persisted with a bcrypt password hash
func ExecuteCreateAccount(ctx context.Context, input CreateAccountInput, deps CreateAccountDeps) (account.Account, error) {
	if input.Actor.ID != "" && !input.Actor.IsAdmin() {
		return account.Account{}, fmt.Errorf("account creation is admin-only: %w", attendance.ErrPermissionDenied)
	}

	if _, err := deps.AccountStore.GetByUsername(ctx, input.Username); err == nil {
		return account.Account{}, fmt.Errorf("username %s is already taken", input.Username)
	}

	acct := account.Account{
		ID:           uuid.New().String(),
		Username:     input.Username,
		DisplayName:  input.DisplayName,
		Role:         input.Role,
		BoundSession: input.BoundSession,
		CreatedAt:    time.Now(),
	}
	if err := acct.Validate(); err != nil {
		return account.Account{}, err
	}
	if err := acct.SetPassword(input.Password); err != nil {
		return account.Account{}, err
	}
	if err := deps.AccountStore.Save(ctx, acct); err != nil {
		return account.Account{}, fmt.Errorf("save account: %w", err)
	}

	if deps.AuditStore != nil && input.Actor.ID != "" {
		event := audit.NewEvent(input.Actor.ID, input.Actor.Username, input.Actor.Role, audit.CategorySecurity, audit.ActionCreate).
			WithResource(acct.ID).
			WithDescription(fmt.Sprintf("created %s account %s", acct.Role, acct.Username))
		if err := deps.AuditStore.Save(ctx, event); err != nil {
			slog.Error("create_account_audit_failed", "username", acct.Username, "error", err.Error())
		}
	}

	slog.Info("account_created", "username", acct.Username, "role", acct.Role)
	return acct, nil
}
