package account_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giapha/internal/account"
	"giapha/internal/apperr"
	"giapha/internal/audit"
	"giapha/internal/config"
	"giapha/internal/model"
	"giapha/internal/monitoring"
	"giapha/internal/notifications"
	"giapha/internal/store"
)

func newTestManager(t *testing.T) (account.Manager, account.Authenticator, *store.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	telemetry, err := monitoring.NewOpenTelemetry(config.TelemetryConfig{})
	require.NoError(t, err)

	st := store.NewMemory()
	auditor := audit.NewAuditor(logger)
	notifier := notifications.NewManager(logger)
	manager := account.NewManager(logger, st, &auditor, &notifier, telemetry)
	authenticator := account.NewAuthenticator(logger, st, &auditor)
	return manager, authenticator, st
}

func register(t *testing.T, m *account.Manager, email string) uuid.UUID {
	t.Helper()
	id, err := m.Register(context.Background(), account.RegisterParam{
		Email:       email,
		DisplayName: "Test Member",
		Password:    "Str0ng!Passw0rd",
	})
	require.NoError(t, err)
	return id
}

func TestRegister_StartsPending(t *testing.T) {
	m, _, _ := newTestManager(t)
	id := register(t, &m, "new@example.com")

	acc, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RolePending, acc.Role)
	assert.Equal(t, model.AccountStatusPendingApproval, acc.Status)
	assert.False(t, acc.Active())
	assert.NotEqual(t, "Str0ng!Passw0rd", acc.PasswordHash, "password is stored hashed")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	m, _, _ := newTestManager(t)
	register(t, &m, "dup@example.com")

	_, err := m.Register(context.Background(), account.RegisterParam{
		Email:       "dup@example.com",
		DisplayName: "Someone Else",
		Password:    "Other!Passw0rd",
	})
	assert.ErrorIs(t, err, account.ErrEmailAlreadyInUse)
}

func TestLogin(t *testing.T) {
	m, auth, _ := newTestManager(t)
	id := register(t, &m, "login@example.com")

	got, err := auth.Login(context.Background(), account.LoginParam{
		Email:    "login@example.com",
		Password: "Str0ng!Passw0rd",
	})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = auth.Login(context.Background(), account.LoginParam{
		Email:    "login@example.com",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, account.ErrInvalidPassword)

	_, err = auth.Login(context.Background(), account.LoginParam{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestApprove_PromotesPendingToMember(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	id := register(t, &m, "member@example.com")

	require.NoError(t, m.Approve(ctx, id, uuid.New()))

	acc, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, acc.Role)
	assert.True(t, acc.Active())

	err = m.Approve(ctx, id, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))
}

func TestLinkPerson(t *testing.T) {
	m, _, st := newTestManager(t)
	ctx := context.Background()

	p := model.Person{ID: uuid.New(), Name: "me in the tree", CreatedAt: time.Now()}
	require.NoError(t, st.CreatePerson(ctx, p))

	id := register(t, &m, "link@example.com")
	require.NoError(t, m.Approve(ctx, id, uuid.New()))

	require.NoError(t, m.LinkPerson(ctx, id, p.ID))
	acc, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, acc.PersonID.IsSet)
	assert.Equal(t, p.ID, acc.PersonID.Val)
}

func TestLinkPerson_Preconditions(t *testing.T) {
	m, _, st := newTestManager(t)
	ctx := context.Background()

	p := model.Person{ID: uuid.New(), Name: "claimed", CreatedAt: time.Now()}
	require.NoError(t, st.CreatePerson(ctx, p))

	pending := register(t, &m, "pending@example.com")
	err := m.LinkPerson(ctx, pending, p.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err), "pending accounts cannot link")

	first := register(t, &m, "first@example.com")
	require.NoError(t, m.Approve(ctx, first, uuid.New()))
	require.NoError(t, m.LinkPerson(ctx, first, p.ID))

	second := register(t, &m, "second@example.com")
	require.NoError(t, m.Approve(ctx, second, uuid.New()))
	err = m.LinkPerson(ctx, second, p.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err), "person already claimed")

	err = m.LinkPerson(ctx, second, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAssignPerson_OverridesExistingClaim(t *testing.T) {
	m, _, st := newTestManager(t)
	ctx := context.Background()

	p := model.Person{ID: uuid.New(), Name: "contested", CreatedAt: time.Now()}
	require.NoError(t, st.CreatePerson(ctx, p))

	first := register(t, &m, "holder@example.com")
	require.NoError(t, m.Approve(ctx, first, uuid.New()))
	require.NoError(t, m.LinkPerson(ctx, first, p.ID))

	second := register(t, &m, "rightful@example.com")
	require.NoError(t, m.AssignPerson(ctx, second, p.ID, uuid.New()))

	acc, err := m.Get(ctx, second)
	require.NoError(t, err)
	require.True(t, acc.PersonID.IsSet)
	assert.Equal(t, p.ID, acc.PersonID.Val)
}

func TestChangeRole(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	rootAdmin := model.Account{ID: uuid.New(), Role: model.RoleRootAdmin, Status: model.AccountStatusActive}
	plainAdmin := model.Account{ID: uuid.New(), Role: model.RoleAdmin, Status: model.AccountStatusActive}

	target := register(t, &m, "promote@example.com")
	require.NoError(t, m.Approve(ctx, target, rootAdmin.ID))

	err := m.ChangeRole(ctx, target, model.RoleAdmin, plainAdmin)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err), "only the root admin changes roles")

	err = m.ChangeRole(ctx, target, model.RoleRootAdmin, rootAdmin)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err), "root_admin is not assignable")

	require.NoError(t, m.ChangeRole(ctx, target, model.RoleAdmin, rootAdmin))
	acc, err := m.Get(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, acc.Role)
}

func TestUnlinkedPersons(t *testing.T) {
	m, _, st := newTestManager(t)
	ctx := context.Background()

	claimed := model.Person{ID: uuid.New(), Name: "claimed", CreatedAt: time.Now()}
	free := model.Person{ID: uuid.New(), Name: "free", CreatedAt: time.Now().Add(time.Second)}
	require.NoError(t, st.CreatePerson(ctx, claimed))
	require.NoError(t, st.CreatePerson(ctx, free))

	id := register(t, &m, "owner@example.com")
	require.NoError(t, m.Approve(ctx, id, uuid.New()))
	require.NoError(t, m.LinkPerson(ctx, id, claimed.ID))

	got, err := m.UnlinkedPersons(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, free.ID, got[0].ID)
}
