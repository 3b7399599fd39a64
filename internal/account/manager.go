package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"giapha/internal/apperr"
	"giapha/internal/audit"
	"giapha/internal/model"
	"giapha/internal/monitoring"
	"giapha/internal/notifications"
	"giapha/internal/store"
)

type Manager struct {
	logger    *slog.Logger
	store     store.Store
	auditor   *audit.Auditor
	notifier  *notifications.Manager
	telemetry monitoring.Telemetry
}

func NewManager(logger *slog.Logger, st store.Store, auditor *audit.Auditor, notifier *notifications.Manager, telemetry monitoring.Telemetry) Manager {
	return Manager{logger: logger, store: st, auditor: auditor, notifier: notifier, telemetry: telemetry}
}

type RegisterParam struct {
	Email       string
	DisplayName string
	Password    string
}

// Register creates a new account in pending state. Nobody gets member rights
// until an admin approves the registration.
func (m *Manager) Register(ctx context.Context, param RegisterParam) (uuid.UUID, error) {
	var accountID uuid.UUID

	// Check if the email is already taken
	_, err := m.store.GetAccountByEmail(ctx, param.Email)
	if err == nil {
		m.telemetry.RecordAccountRegistration(ctx, param.Email, false)
		return accountID, ErrEmailAlreadyInUse
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return accountID, fmt.Errorf("failed to check if account exists: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(param.Password), bcrypt.DefaultCost)
	if err != nil {
		return accountID, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	acc := model.Account{
		ID:           uuid.New(),
		Email:        param.Email,
		DisplayName:  param.DisplayName,
		PasswordHash: string(passwordHash),
		Role:         model.RolePending,
		Status:       model.AccountStatusPendingApproval,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateAccount(ctx, acc); err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: acc.ID,
			Type:    audit.EventTypeAccountRegister,
			Data:    map[string]any{"email": acc.Email},
		})
	})
	if err != nil {
		m.telemetry.RecordAccountRegistration(ctx, param.Email, false)
		return accountID, err
	}

	m.telemetry.RecordAccountRegistration(ctx, param.Email, true)
	m.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", acc.ID.String()),
		slog.String("email", acc.Email),
	)
	return acc.ID, nil
}

// Approve activates a pending account and grants it member role. Admin only;
// the caller is responsible for having checked the actor's role.
func (m *Manager) Approve(ctx context.Context, accountID, approverID uuid.UUID) error {
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acc.Active() {
			return apperr.New(apperr.KindFailedPrecondition, "account %s is already active", accountID)
		}

		role := acc.Role
		if role == model.RolePending {
			role = model.RoleMember
		}
		if err := tx.SetAccount(ctx, accountID, map[string]any{
			"status":    model.AccountStatusActive,
			"role":      role,
			"updatedAt": time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to activate account: %w", err)
		}

		if err := m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: approverID,
			Type:    audit.EventTypeAccountApprove,
			Data:    map[string]any{"accountId": accountID.String()},
		}); err != nil {
			return err
		}
		return m.notifier.Notify(ctx, tx, notifications.NotifyParam{
			OwnerID: accountID,
			Type:    model.NotificationTypeInfo,
			Title:   "Account approved",
			Message: "Your membership was approved. You can now browse the family tree.",
		})
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "account approved",
		slog.String("account_id", accountID.String()),
		slog.String("approver_id", approverID.String()),
	)
	return nil
}

// LinkPerson attaches the account to its own node in the tree. The person
// must not be claimed by any other account; an admin uses AssignPerson to
// override an existing claim.
func (m *Manager) LinkPerson(ctx context.Context, accountID, personID uuid.UUID) error {
	return m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !acc.Active() {
			return apperr.New(apperr.KindFailedPrecondition, "account %s is not active", accountID)
		}

		if _, err := tx.GetPerson(ctx, personID); err != nil {
			if errors.Is(err, store.ErrPersonNotFound) {
				return apperr.New(apperr.KindNotFound, "person %s does not exist", personID)
			}
			return fmt.Errorf("failed to get person: %w", err)
		}

		accounts, err := tx.ListAccounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		for _, other := range accounts {
			if other.ID != accountID && other.PersonID.IsSet && other.PersonID.Val == personID {
				return apperr.New(apperr.KindFailedPrecondition, "person %s is already linked to another account", personID)
			}
		}

		if err := tx.SetAccount(ctx, accountID, map[string]any{
			"personId":  personID,
			"updatedAt": time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to link person: %w", err)
		}
		return m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: accountID,
			Type:    audit.EventTypeAccountLinkPerson,
			Data:    map[string]any{"personId": personID.String()},
		})
	})
}

// AssignPerson is the admin override for linking: it replaces whatever link
// the account had, without the already-claimed check.
func (m *Manager) AssignPerson(ctx context.Context, accountID, personID, actorID uuid.UUID) error {
	return m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getAccount(ctx, tx, accountID); err != nil {
			return err
		}
		if _, err := tx.GetPerson(ctx, personID); err != nil {
			if errors.Is(err, store.ErrPersonNotFound) {
				return apperr.New(apperr.KindNotFound, "person %s does not exist", personID)
			}
			return fmt.Errorf("failed to get person: %w", err)
		}

		if err := tx.SetAccount(ctx, accountID, map[string]any{
			"personId":  personID,
			"updatedAt": time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to assign person: %w", err)
		}
		return m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: actorID,
			Type:    audit.EventTypeAccountLinkPerson,
			Data:    map[string]any{"accountId": accountID.String(), "personId": personID.String(), "override": true},
		})
	})
}

// ChangeRole promotes or demotes an account. Only the root admin may touch
// roles, and the root_admin role itself is never assignable this way.
func (m *Manager) ChangeRole(ctx context.Context, accountID uuid.UUID, role model.Role, actor model.Account) error {
	if actor.Role != model.RoleRootAdmin {
		return apperr.New(apperr.KindPermissionDenied, "only the root admin can change roles")
	}
	if !role.IsValid() || role == model.RoleRootAdmin {
		return apperr.New(apperr.KindInvalidArgument, "role %q cannot be assigned", role)
	}

	return m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acc.Role == model.RoleRootAdmin {
			return apperr.New(apperr.KindFailedPrecondition, "the root admin role cannot be changed")
		}

		if err := tx.SetAccount(ctx, accountID, map[string]any{
			"role":      role,
			"updatedAt": time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to change role: %w", err)
		}
		return m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: actor.ID,
			Type:    audit.EventTypeAccountRoleChange,
			Data:    map[string]any{"accountId": accountID.String(), "role": string(role)},
		})
	})
}

func (m *Manager) Get(ctx context.Context, accountID uuid.UUID) (model.Account, error) {
	return getAccount(ctx, m.store, accountID)
}

func (m *Manager) List(ctx context.Context) ([]model.Account, error) {
	return m.store.ListAccounts(ctx)
}

// UnlinkedPersons lists the persons no account has claimed yet, for the
// self-service linking picker.
func (m *Manager) UnlinkedPersons(ctx context.Context) ([]model.Person, error) {
	persons, err := m.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	accounts, err := m.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	linked := make(map[uuid.UUID]bool, len(accounts))
	for _, acc := range accounts {
		if acc.PersonID.IsSet {
			linked[acc.PersonID.Val] = true
		}
	}

	var out []model.Person
	for _, p := range persons {
		if !linked[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func getAccount(ctx context.Context, tx store.Tx, accountID uuid.UUID) (model.Account, error) {
	acc, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return model.Account{}, apperr.New(apperr.KindNotFound, "account %s does not exist", accountID)
		}
		return model.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}
