package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"giapha/internal/audit"
	"giapha/internal/store"
)

var (
	ErrAccountNotFound   = fmt.Errorf("account not found")
	ErrInvalidPassword   = fmt.Errorf("invalid password")
	ErrEmailAlreadyInUse = fmt.Errorf("email already in use")
)

type Authenticator struct {
	logger  *slog.Logger
	store   store.Store
	auditor *audit.Auditor
}

func NewAuthenticator(logger *slog.Logger, st store.Store, auditor *audit.Auditor) Authenticator {
	return Authenticator{logger: logger, store: st, auditor: auditor}
}

type LoginParam struct {
	Email    string
	Password string
}

// Login verifies the credentials and returns the account id. Pending
// accounts can log in; the web layer decides what a pending session may
// see.
func (a *Authenticator) Login(ctx context.Context, param LoginParam) (uuid.UUID, error) {
	var accountID uuid.UUID

	acc, err := a.store.GetAccountByEmail(ctx, param.Email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return accountID, ErrAccountNotFound
		}
		return accountID, fmt.Errorf("failed to get account by email: %w", err)
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(param.Password)); err != nil {
		return accountID, ErrInvalidPassword
	}

	accountID = acc.ID

	if err := a.auditor.Record(ctx, a.store, audit.RecordParams{
		ActorID: acc.ID,
		Type:    audit.EventTypeAccountLogin,
		Data:    map[string]any{"email": acc.Email},
	}); err != nil {
		return accountID, fmt.Errorf("failed to record audit event: %w", err)
	}

	return accountID, nil
}
