package person_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giapha/internal/apperr"
	"giapha/internal/audit"
	"giapha/internal/cache"
	"giapha/internal/config"
	"giapha/internal/model"
	"giapha/internal/monitoring"
	"giapha/internal/person"
	"giapha/internal/store"
	"giapha/internal/util"
)

func newTestService(t *testing.T) (person.Service, *store.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	telemetry, err := monitoring.NewOpenTelemetry(config.TelemetryConfig{})
	require.NoError(t, err)

	st := store.NewMemory()
	auditor := audit.NewAuditor(logger)
	treeCache := cache.NewTreeCache(logger, nil, time.Minute)
	return person.NewService(logger, st, &auditor, treeCache, telemetry), st
}

func seed(t *testing.T, st *store.Memory, p model.Person) model.Person {
	t.Helper()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	require.NoError(t, st.CreatePerson(context.Background(), p))
	return p
}

func memberAccount(personID uuid.UUID) model.Account {
	acc := model.Account{ID: uuid.New(), Role: model.RoleMember, Status: model.AccountStatusActive}
	if personID != uuid.Nil {
		acc.PersonID = util.Some(personID)
	}
	return acc
}

func adminAccount() model.Account {
	return model.Account{ID: uuid.New(), Role: model.RoleAdmin, Status: model.AccountStatusActive}
}

func TestTree_BuildsFromSnapshot(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()

	root := seed(t, st, model.Person{Name: "root", Gender: model.GenderMale, CreatedAt: time.Now()})
	seed(t, st, model.Person{
		Name: "kid", Gender: model.GenderFemale,
		FatherID:  util.Some(root.ID),
		CreatedAt: time.Now().Add(time.Second),
	})

	result, err := s.Tree(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Root)
	assert.Equal(t, root.ID, result.Root.Person.ID)
	assert.Len(t, result.Flat, 2)
}

func TestGet_ContactVisibility(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()

	father := seed(t, st, model.Person{Name: "father", Gender: model.GenderMale})
	me := seed(t, st, model.Person{Name: "me", Gender: model.GenderMale, FatherID: util.Some(father.ID)})
	stranger := seed(t, st, model.Person{Name: "stranger", Gender: model.GenderFemale})

	require.NoError(t, st.SetPrivateContact(ctx, father.ID, map[string]any{
		"contact": model.Contact{Phone: "secret"},
	}))

	// A child is a direct relative and sees the contact block.
	view, err := s.Get(ctx, memberAccount(me.ID), father.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Contact)
	assert.Equal(t, "secret", view.Contact.Phone)

	// A stranger gets the person without contact.
	view, err = s.Get(ctx, memberAccount(stranger.ID), father.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Contact)

	// An unlinked account gets the person without contact.
	view, err = s.Get(ctx, memberAccount(uuid.Nil), father.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Contact)

	// Admins always see it.
	view, err = s.Get(ctx, adminAccount(), father.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Contact)
}

func TestGet_NoContactRecord(t *testing.T) {
	s, st := newTestService(t)
	p := seed(t, st, model.Person{Name: "plain", Gender: model.GenderMale})

	view, err := s.Get(context.Background(), adminAccount(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Contact)
}

func TestKin(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()

	father := seed(t, st, model.Person{Name: "father", Gender: model.GenderMale, CreatedAt: time.Now()})
	mother := seed(t, st, model.Person{Name: "mother", Gender: model.GenderFemale, CreatedAt: time.Now()})
	me := seed(t, st, model.Person{
		Name: "me", Gender: model.GenderMale,
		FatherID: util.Some(father.ID), MotherID: util.Some(mother.ID),
		CreatedAt: time.Now().Add(time.Second),
	})
	sister := seed(t, st, model.Person{
		Name: "sister", Gender: model.GenderFemale,
		FatherID: util.Some(father.ID), MotherID: util.Some(mother.ID),
		CreatedAt: time.Now().Add(2 * time.Second),
	})
	wife := seed(t, st, model.Person{Name: "wife", Gender: model.GenderFemale})
	require.NoError(t, st.CreateUnion(ctx, model.Union{ID: uuid.New(), HusbandID: me.ID, WifeID: wife.ID}))

	kin, err := s.Kin(ctx, me.ID)
	require.NoError(t, err)
	assert.Len(t, kin.Parents, 2)
	require.Len(t, kin.Siblings, 1)
	assert.Equal(t, sister.ID, kin.Siblings[0].ID)
	require.Len(t, kin.Spouses, 1)
	assert.Equal(t, wife.ID, kin.Spouses[0].ID)
	assert.Empty(t, kin.Children)

	kinOfFather, err := s.Kin(ctx, father.ID)
	require.NoError(t, err)
	assert.Len(t, kinOfFather.Children, 2)

	_, err = s.Kin(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDirectEdit_SelfAndRelatives(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()

	father := seed(t, st, model.Person{Name: "father", Gender: model.GenderMale})
	me := seed(t, st, model.Person{Name: "me", Gender: model.GenderMale, FatherID: util.Some(father.ID)})
	stranger := seed(t, st, model.Person{Name: "stranger", Gender: model.GenderMale})

	// Self edit.
	require.NoError(t, s.DirectEdit(ctx, memberAccount(me.ID), me.ID, map[string]any{"nickname": "tí"}))
	got, err := st.GetPerson(ctx, me.ID)
	require.NoError(t, err)
	assert.Equal(t, "tí", got.Nickname)

	// Child edits parent.
	require.NoError(t, s.DirectEdit(ctx, memberAccount(me.ID), father.ID, map[string]any{"isDeceased": true}))

	// Stranger denied.
	err = s.DirectEdit(ctx, memberAccount(stranger.ID), father.ID, map[string]any{"name": "vandalized"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))
	got, err = st.GetPerson(ctx, father.ID)
	require.NoError(t, err)
	assert.Equal(t, "father", got.Name)
}

func TestDirectEdit_Guards(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	p := seed(t, st, model.Person{Name: "p", Gender: model.GenderMale})

	err := s.DirectEdit(ctx, model.Account{}, p.ID, map[string]any{"name": "x"})
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	inactive := model.Account{ID: uuid.New(), Role: model.RoleMember, Status: model.AccountStatusPendingApproval}
	err = s.DirectEdit(ctx, inactive, p.ID, map[string]any{"name": "x"})
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))

	err = s.DirectEdit(ctx, adminAccount(), p.ID, map[string]any{})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	err = s.DirectEdit(ctx, adminAccount(), p.ID, map[string]any{"id": uuid.New()})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	unlinked := model.Account{ID: uuid.New(), Role: model.RoleMember, Status: model.AccountStatusActive}
	err = s.DirectEdit(ctx, unlinked, p.ID, map[string]any{"name": "x"})
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))

	err = s.DirectEdit(ctx, adminAccount(), uuid.New(), map[string]any{"name": "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDirectEdit_ContactRoutesToPrivateCollection(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	me := seed(t, st, model.Person{Name: "me", Gender: model.GenderMale})

	require.NoError(t, s.DirectEdit(ctx, memberAccount(me.ID), me.ID, map[string]any{
		"contact": model.Contact{PersonalEmail: "me@example.com"},
	}))

	contact, err := st.GetPrivateContact(ctx, me.ID)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", contact.Contact.PersonalEmail)

	got, err := st.GetPerson(ctx, me.ID)
	require.NoError(t, err)
	assert.Equal(t, "me", got.Name, "person record untouched by a contact-only edit")
}

func TestCreate_AdminOnlyWithParentValidation(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	father := seed(t, st, model.Person{Name: "father", Gender: model.GenderMale})

	_, err := s.Create(ctx, memberAccount(uuid.Nil), person.CreateParams{Name: "x", Gender: model.GenderMale})
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))

	_, err = s.Create(ctx, adminAccount(), person.CreateParams{Gender: model.GenderMale})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = s.Create(ctx, adminAccount(), person.CreateParams{Name: "x", Gender: "unknown"})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = s.Create(ctx, adminAccount(), person.CreateParams{
		Name: "x", Gender: model.GenderMale, FatherID: uuid.New(),
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	id, err := s.Create(ctx, adminAccount(), person.CreateParams{
		Name: "son", Gender: model.GenderMale, FatherID: father.ID,
	})
	require.NoError(t, err)

	got, err := st.GetPerson(ctx, id)
	require.NoError(t, err)
	require.True(t, got.FatherID.IsSet)
	assert.Equal(t, father.ID, got.FatherID.Val)
}

func TestDelete_SeversReferences(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()

	victim := seed(t, st, model.Person{Name: "victim", Gender: model.GenderMale})
	kid := seed(t, st, model.Person{Name: "kid", Gender: model.GenderFemale, FatherID: util.Some(victim.ID)})
	widow := seed(t, st, model.Person{Name: "widow", Gender: model.GenderFemale})
	require.NoError(t, st.CreateUnion(ctx, model.Union{ID: uuid.New(), HusbandID: victim.ID, WifeID: widow.ID}))

	err := s.Delete(ctx, memberAccount(uuid.Nil), victim.ID)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))

	require.NoError(t, s.Delete(ctx, adminAccount(), victim.ID))

	_, err = st.GetPerson(ctx, victim.ID)
	assert.ErrorIs(t, err, store.ErrPersonNotFound)

	got, err := st.GetPerson(ctx, kid.ID)
	require.NoError(t, err)
	assert.False(t, got.FatherID.IsSet, "child's parent link severed")

	unions, err := st.ListUnions(ctx)
	require.NoError(t, err)
	assert.Empty(t, unions)
}

func TestCanEdit(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()

	me := seed(t, st, model.Person{Name: "me", Gender: model.GenderMale})
	stranger := seed(t, st, model.Person{Name: "stranger", Gender: model.GenderMale})

	ok, err := s.CanEdit(ctx, adminAccount(), stranger.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CanEdit(ctx, memberAccount(uuid.Nil), me.ID)
	require.NoError(t, err)
	assert.False(t, ok, "unlinked account cannot edit anyone")

	ok, err = s.CanEdit(ctx, memberAccount(me.ID), me.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CanEdit(ctx, memberAccount(me.ID), stranger.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
