package proposal_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giapha/internal/apperr"
	"giapha/internal/audit"
	"giapha/internal/config"
	"giapha/internal/model"
	"giapha/internal/monitoring"
	"giapha/internal/notifications"
	"giapha/internal/proposal"
	"giapha/internal/store"
)

// treeCacheSpy counts invalidations so tests can assert that approvals drop
// the cached tree.
type treeCacheSpy struct {
	mu    sync.Mutex
	count int
}

func (s *treeCacheSpy) Invalidate(context.Context) {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

func (s *treeCacheSpy) Invalidations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func newTestMachine(t *testing.T) (proposal.Machine, *store.Memory) {
	t.Helper()
	m, st, _ := newTestMachineWithCache(t)
	return m, st
}

func newTestMachineWithCache(t *testing.T) (proposal.Machine, *store.Memory, *treeCacheSpy) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	telemetry, err := monitoring.NewOpenTelemetry(config.TelemetryConfig{})
	require.NoError(t, err)

	st := store.NewMemory()
	auditor := audit.NewAuditor(logger)
	notifier := notifications.NewManager(logger)
	treeCache := &treeCacheSpy{}
	return proposal.NewMachine(logger, st, &auditor, &notifier, treeCache, telemetry), st, treeCache
}

func reviewerAccount() model.Account {
	return model.Account{ID: uuid.New(), Role: model.RoleAdmin, Status: model.AccountStatusActive}
}

func seedPerson(t *testing.T, st *store.Memory, name string, gender model.Gender) model.Person {
	t.Helper()
	p := model.Person{ID: uuid.New(), Name: name, Gender: gender, CreatedAt: time.Now()}
	require.NoError(t, st.CreatePerson(context.Background(), p))
	return p
}

func submitFieldChange(t *testing.T, m *proposal.Machine, proposer uuid.UUID, target uuid.UUID, fields map[string]any) model.Proposal {
	t.Helper()
	prop, err := m.Submit(context.Background(), proposal.SubmitParams{
		ProposerID:  proposer,
		Kind:        model.ProposalKindFieldChange,
		FieldChange: &model.FieldChange{TargetPersonID: target, Fields: fields},
	})
	require.NoError(t, err)
	return prop
}

func TestSubmit_Validation(t *testing.T) {
	m, st := newTestMachine(t)
	target := seedPerson(t, st, "target", model.GenderMale)
	proposer := uuid.New()

	tests := []struct {
		name   string
		params proposal.SubmitParams
		kind   apperr.Kind
	}{
		{
			name:   "no_proposer",
			params: proposal.SubmitParams{Kind: model.ProposalKindFieldChange},
			kind:   apperr.KindUnauthenticated,
		},
		{
			name:   "unknown_kind",
			params: proposal.SubmitParams{ProposerID: proposer, Kind: "mystery"},
			kind:   apperr.KindInvalidArgument,
		},
		{
			name:   "missing_payload",
			params: proposal.SubmitParams{ProposerID: proposer, Kind: model.ProposalKindFieldChange},
			kind:   apperr.KindInvalidArgument,
		},
		{
			name: "foreign_payload",
			params: proposal.SubmitParams{
				ProposerID:  proposer,
				Kind:        model.ProposalKindFieldChange,
				FieldChange: &model.FieldChange{TargetPersonID: target.ID, Fields: map[string]any{"name": "x"}},
				AddRelative: &model.AddRelative{},
			},
			kind: apperr.KindInvalidArgument,
		},
		{
			name: "empty_field_map",
			params: proposal.SubmitParams{
				ProposerID:  proposer,
				Kind:        model.ProposalKindFieldChange,
				FieldChange: &model.FieldChange{TargetPersonID: target.ID},
			},
			kind: apperr.KindInvalidArgument,
		},
		{
			name: "immutable_field",
			params: proposal.SubmitParams{
				ProposerID:  proposer,
				Kind:        model.ProposalKindFieldChange,
				FieldChange: &model.FieldChange{TargetPersonID: target.ID, Fields: map[string]any{"id": uuid.New()}},
			},
			kind: apperr.KindInvalidArgument,
		},
		{
			name: "self_link",
			params: proposal.SubmitParams{
				ProposerID: proposer,
				Kind:       model.ProposalKindLinkRelative,
				LinkRelative: &model.LinkRelative{
					TargetPersonID: target.ID,
					Relationship:   model.RelationshipSpouse,
					LinkedPersonID: target.ID,
				},
			},
			kind: apperr.KindInvalidArgument,
		},
		{
			name: "add_relative_without_name",
			params: proposal.SubmitParams{
				ProposerID: proposer,
				Kind:       model.ProposalKindAddRelative,
				AddRelative: &model.AddRelative{
					TargetPersonID: target.ID,
					Relationship:   model.RelationshipChild,
					NewPerson:      model.NewPersonData{Gender: model.GenderMale},
				},
			},
			kind: apperr.KindInvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Submit(context.Background(), tt.params)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestSubmit_LinkToMissingPersonRejected(t *testing.T) {
	m, st := newTestMachine(t)
	target := seedPerson(t, st, "target", model.GenderMale)

	_, err := m.Submit(context.Background(), proposal.SubmitParams{
		ProposerID: uuid.New(),
		Kind:       model.ProposalKindLinkRelative,
		LinkRelative: &model.LinkRelative{
			TargetPersonID: target.ID,
			Relationship:   model.RelationshipSpouse,
			LinkedPersonID: uuid.New(),
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestApprove_FieldChange(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "old name", model.GenderMale)
	approver := uuid.New()

	prop := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "new name"})
	require.NoError(t, m.Approve(ctx, prop.ID, approver))

	got, err := st.GetPerson(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "new name", got.Name)

	resolved, err := m.Get(ctx, reviewerAccount(), prop.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusApproved, resolved.Status)
	assert.True(t, resolved.ResolvedAt.IsSet)
}

func TestApprove_ContactRoutesToPrivateCollection(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "target", model.GenderFemale)

	prop := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{
		"contact":   model.Contact{Phone: "0123", PersonalEmail: "t@example.com"},
		"biography": "updated too",
	})
	require.NoError(t, m.Approve(ctx, prop.ID, uuid.New()))

	contact, err := st.GetPrivateContact(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "0123", contact.Contact.Phone)

	got, err := st.GetPerson(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated too", got.Biography)
}

func TestApprove_AddRelativeSpouseGenderRoles(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "husband to be", model.GenderMale)

	prop, err := m.Submit(ctx, proposal.SubmitParams{
		ProposerID: uuid.New(),
		Kind:       model.ProposalKindAddRelative,
		AddRelative: &model.AddRelative{
			TargetPersonID: target.ID,
			Relationship:   model.RelationshipSpouse,
			NewPerson:      model.NewPersonData{Name: "wife", Gender: model.GenderFemale},
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Approve(ctx, prop.ID, uuid.New()))

	unions, err := st.ListUnions(ctx)
	require.NoError(t, err)
	require.Len(t, unions, 1)
	assert.Equal(t, target.ID, unions[0].HusbandID, "male target takes the husband slot")
	assert.NotEqual(t, uuid.Nil, unions[0].WifeID)

	persons, err := st.ListPersons(ctx)
	require.NoError(t, err)
	assert.Len(t, persons, 2)
}

func TestApprove_AddRelativeParentByGender(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "kid", model.GenderMale)

	prop, err := m.Submit(ctx, proposal.SubmitParams{
		ProposerID: uuid.New(),
		Kind:       model.ProposalKindAddRelative,
		AddRelative: &model.AddRelative{
			TargetPersonID: target.ID,
			Relationship:   model.RelationshipParent,
			NewPerson:      model.NewPersonData{Name: "mom", Gender: model.GenderFemale},
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Approve(ctx, prop.ID, uuid.New()))

	got, err := st.GetPerson(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, got.MotherID.IsSet)
	assert.False(t, got.FatherID.IsSet)
}

func TestApprove_AmbiguousGenderLeavesPending(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "target", model.GenderOther)

	prop, err := m.Submit(ctx, proposal.SubmitParams{
		ProposerID: uuid.New(),
		Kind:       model.ProposalKindAddRelative,
		AddRelative: &model.AddRelative{
			TargetPersonID: target.ID,
			Relationship:   model.RelationshipSpouse,
			NewPerson:      model.NewPersonData{Name: "partner", Gender: model.GenderFemale},
		},
	})
	require.NoError(t, err)

	err = m.Approve(ctx, prop.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))

	// The transaction rolled back: no union, no new person, still pending.
	unions, err := st.ListUnions(ctx)
	require.NoError(t, err)
	assert.Empty(t, unions)
	persons, err := st.ListPersons(ctx)
	require.NoError(t, err)
	assert.Len(t, persons, 1)

	got, err := m.Get(ctx, reviewerAccount(), prop.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusPending, got.Status, "approver can still reject with reason")
}

func TestApprove_LinkRelativeFather(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "kid", model.GenderFemale)
	father := seedPerson(t, st, "father", model.GenderMale)

	prop, err := m.Submit(ctx, proposal.SubmitParams{
		ProposerID: uuid.New(),
		Kind:       model.ProposalKindLinkRelative,
		LinkRelative: &model.LinkRelative{
			TargetPersonID: target.ID,
			Relationship:   model.RelationshipFather,
			LinkedPersonID: father.ID,
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Approve(ctx, prop.ID, uuid.New()))

	got, err := st.GetPerson(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, got.FatherID.IsSet)
	assert.Equal(t, father.ID, got.FatherID.Val)
}

func TestApprove_TerminalStatesAreFinal(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "target", model.GenderMale)
	approver := uuid.New()

	prop := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "once"})
	require.NoError(t, m.Approve(ctx, prop.ID, approver))

	err := m.Approve(ctx, prop.ID, approver)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))

	err = m.Reject(ctx, prop.ID, approver, "changed my mind")
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))
}

func TestApprove_ConcurrentDoubleApprove(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "target", model.GenderMale)

	prop := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "raced"})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Approve(ctx, prop.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	var successes, preconditions int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.IsKind(err, apperr.KindFailedPrecondition):
			preconditions++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, preconditions)
}

func TestReject(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "untouched", model.GenderMale)
	approver := uuid.New()

	prop := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "never applied"})
	require.NoError(t, m.Reject(ctx, prop.ID, approver, "not plausible"))

	got, err := st.GetPerson(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "untouched", got.Name)

	resolved, err := m.Get(ctx, reviewerAccount(), prop.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusRejected, resolved.Status)
	assert.Equal(t, "not plausible", resolved.Reason)
}

func TestApprove_MissingTargetLeavesPending(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "doomed", model.GenderMale)

	prop := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "x"})
	require.NoError(t, st.DeletePerson(ctx, target.ID))

	err := m.Approve(ctx, prop.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	got, err := m.Get(ctx, reviewerAccount(), prop.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusPending, got.Status)
}

func TestApprove_InvalidatesTreeCache(t *testing.T) {
	m, st, treeCache := newTestMachineWithCache(t)
	ctx := context.Background()
	target := seedPerson(t, st, "target", model.GenderMale)

	prop := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "renamed"})
	require.NoError(t, m.Approve(ctx, prop.ID, uuid.New()))
	assert.Equal(t, 1, treeCache.Invalidations(), "an applied approval must drop the cached tree")

	// Re-approving fails the precondition and mutates nothing.
	require.Error(t, m.Approve(ctx, prop.ID, uuid.New()))
	assert.Equal(t, 1, treeCache.Invalidations())

	// Rejection mutates no person or union data either.
	second := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "never"})
	require.NoError(t, m.Reject(ctx, second.ID, uuid.New(), "implausible"))
	assert.Equal(t, 1, treeCache.Invalidations())
}

func TestGet_VisibleToProposerAndAdminsOnly(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "target", model.GenderFemale)

	proposer := model.Account{ID: uuid.New(), Role: model.RoleMember, Status: model.AccountStatusActive}
	prop := submitFieldChange(t, &m, proposer.ID, target.ID, map[string]any{
		"contact": model.Contact{Phone: "0123"},
	})

	got, err := m.Get(ctx, proposer, prop.ID)
	require.NoError(t, err)
	assert.Equal(t, prop.ID, got.ID)

	_, err = m.Get(ctx, reviewerAccount(), prop.ID)
	require.NoError(t, err)

	stranger := model.Account{ID: uuid.New(), Role: model.RoleMember, Status: model.AccountStatusActive}
	_, err = m.Get(ctx, stranger, prop.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))
}

func TestPending_ListsOnlyPending(t *testing.T) {
	m, st := newTestMachine(t)
	ctx := context.Background()
	target := seedPerson(t, st, "target", model.GenderMale)

	first := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "a"})
	second := submitFieldChange(t, &m, uuid.New(), target.ID, map[string]any{"name": "b"})
	require.NoError(t, m.Approve(ctx, first.ID, uuid.New()))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
