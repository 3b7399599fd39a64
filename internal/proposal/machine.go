// Package proposal runs the review workflow for untrusted genealogy edits.
// Every change from a non-privileged member enters as a pending proposal and
// leaves through exactly one of approve, reject or failed.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/audit"
	"giapha/internal/model"
	"giapha/internal/monitoring"
	"giapha/internal/notifications"
	"giapha/internal/store"
	"giapha/internal/util"
)

// TreeInvalidator drops the cached family tree after an approval mutates
// person or union data. *cache.TreeCache satisfies it.
type TreeInvalidator interface {
	Invalidate(ctx context.Context)
}

type Machine struct {
	logger    *slog.Logger
	store     store.Store
	auditor   *audit.Auditor
	notifier  *notifications.Manager
	treeCache TreeInvalidator
	telemetry monitoring.Telemetry
}

func NewMachine(logger *slog.Logger, st store.Store, auditor *audit.Auditor, notifier *notifications.Manager, treeCache TreeInvalidator, telemetry monitoring.Telemetry) Machine {
	return Machine{logger: logger, store: st, auditor: auditor, notifier: notifier, treeCache: treeCache, telemetry: telemetry}
}

type SubmitParams struct {
	ProposerID   uuid.UUID
	Note         string
	Kind         model.ProposalKind
	FieldChange  *model.FieldChange
	AddRelative  *model.AddRelative
	LinkRelative *model.LinkRelative
}

// Submit validates the payload against its discriminant and persists the
// proposal as pending. No person or union data changes yet.
func (m *Machine) Submit(ctx context.Context, params SubmitParams) (model.Proposal, error) {
	if err := validateSubmit(params); err != nil {
		return model.Proposal{}, err
	}

	if params.Kind == model.ProposalKindLinkRelative {
		if _, err := m.store.GetPerson(ctx, params.LinkRelative.LinkedPersonID); err != nil {
			if errors.Is(err, store.ErrPersonNotFound) {
				return model.Proposal{}, apperr.New(apperr.KindNotFound, "linked person %s does not exist", params.LinkRelative.LinkedPersonID)
			}
			return model.Proposal{}, fmt.Errorf("failed to resolve linked person: %w", err)
		}
	}

	prop := model.Proposal{
		ID:           uuid.New(),
		ProposerID:   params.ProposerID,
		Note:         params.Note,
		Status:       model.ProposalStatusPending,
		Kind:         params.Kind,
		FieldChange:  params.FieldChange,
		AddRelative:  params.AddRelative,
		LinkRelative: params.LinkRelative,
		CreatedAt:    time.Now(),
	}

	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateProposal(ctx, prop); err != nil {
			return fmt.Errorf("failed to create proposal: %w", err)
		}
		return m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: params.ProposerID,
			Type:    audit.EventTypeProposalSubmit,
			Data:    map[string]any{"proposalId": prop.ID.String(), "kind": string(prop.Kind)},
		})
	})
	if err != nil {
		return model.Proposal{}, err
	}

	m.logger.InfoContext(ctx, "proposal submitted",
		slog.String("proposal_id", prop.ID.String()),
		slog.String("kind", string(prop.Kind)),
		slog.String("proposer_id", params.ProposerID.String()),
	)
	return prop, nil
}

// Approve applies the proposed mutation and flips the status in one
// transaction. Re-reading the status inside the transaction makes two
// concurrent approvals resolve as one success and one failed-precondition.
//
// Apply errors that carry a taxonomy kind describe a precondition the
// approver can see and fix (missing target, ambiguous gender); the
// transaction rolls back and the proposal stays pending for a reject with
// reason. An untyped apply error is an infrastructure fault: the transaction
// rolls back and a second transaction parks the proposal in failed with the
// captured message, so it never looks unprocessed.
func (m *Machine) Approve(ctx context.Context, proposalID, approverID uuid.UUID) error {
	var kind model.ProposalKind
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		prop, err := getProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if prop.Status != model.ProposalStatusPending {
			return apperr.New(apperr.KindFailedPrecondition, "proposal %s already %s", prop.ID, prop.Status)
		}
		kind = prop.Kind

		if err := m.apply(ctx, tx, prop); err != nil {
			return err
		}

		now := time.Now()
		if err := tx.SetProposal(ctx, prop.ID, map[string]any{
			"status":     model.ProposalStatusApproved,
			"resolverId": approverID,
			"resolvedAt": now,
		}); err != nil {
			return fmt.Errorf("failed to resolve proposal: %w", err)
		}

		if err := m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: approverID,
			Type:    audit.EventTypeProposalApprove,
			Data:    map[string]any{"proposalId": prop.ID.String(), "kind": string(prop.Kind)},
		}); err != nil {
			return err
		}
		return m.notifier.Notify(ctx, tx, notifications.NotifyParam{
			OwnerID: prop.ProposerID,
			Type:    model.NotificationTypeInfo,
			Title:   "Proposal approved",
			Message: fmt.Sprintf("Your %s proposal was approved.", prop.Kind),
		})
	})
	if err == nil {
		m.treeCache.Invalidate(ctx)
		m.telemetry.RecordProposalResolution(ctx, string(kind), string(model.ProposalStatusApproved))
		m.logger.InfoContext(ctx, "proposal approved",
			slog.String("proposal_id", proposalID.String()),
			slog.String("approver_id", approverID.String()),
		)
		return nil
	}

	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}

	m.markFailed(ctx, proposalID, approverID, err)
	m.telemetry.RecordProposalResolution(ctx, string(kind), string(model.ProposalStatusFailed))
	return apperr.Wrap(apperr.KindInternal, err, "proposal apply step failed")
}

// Reject resolves the proposal without touching person or union data.
func (m *Machine) Reject(ctx context.Context, proposalID, approverID uuid.UUID, reason string) error {
	var kind model.ProposalKind
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		prop, err := getProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if prop.Status != model.ProposalStatusPending {
			return apperr.New(apperr.KindFailedPrecondition, "proposal %s already %s", prop.ID, prop.Status)
		}
		kind = prop.Kind

		if err := tx.SetProposal(ctx, prop.ID, map[string]any{
			"status":     model.ProposalStatusRejected,
			"reason":     reason,
			"resolverId": approverID,
			"resolvedAt": time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to resolve proposal: %w", err)
		}

		if err := m.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: approverID,
			Type:    audit.EventTypeProposalReject,
			Data:    map[string]any{"proposalId": prop.ID.String(), "reason": reason},
		}); err != nil {
			return err
		}
		return m.notifier.Notify(ctx, tx, notifications.NotifyParam{
			OwnerID: prop.ProposerID,
			Type:    model.NotificationTypeWarning,
			Title:   "Proposal rejected",
			Message: fmt.Sprintf("Your %s proposal was rejected: %s", prop.Kind, reason),
		})
	})
	if err != nil {
		return err
	}

	m.telemetry.RecordProposalResolution(ctx, string(kind), string(model.ProposalStatusRejected))
	m.logger.InfoContext(ctx, "proposal rejected",
		slog.String("proposal_id", proposalID.String()),
		slog.String("approver_id", approverID.String()),
	)
	return nil
}

// Get returns the proposal to its proposer or to an admin. A field-change
// payload can carry restricted contact data, so visibility follows the same
// line as the privileged contact record.
func (m *Machine) Get(ctx context.Context, actor model.Account, proposalID uuid.UUID) (model.Proposal, error) {
	prop, err := getProposal(ctx, m.store, proposalID)
	if err != nil {
		return model.Proposal{}, err
	}
	if !actor.Role.IsAdmin() && prop.ProposerID != actor.ID {
		return model.Proposal{}, apperr.New(apperr.KindPermissionDenied, "account %s may not view proposal %s", actor.ID, proposalID)
	}
	return prop, nil
}

func (m *Machine) Pending(ctx context.Context) ([]model.Proposal, error) {
	return m.store.ListProposals(ctx, store.ListProposalsParams{
		Status: util.Some(model.ProposalStatusPending),
	})
}

func (m *Machine) List(ctx context.Context) ([]model.Proposal, error) {
	return m.store.ListProposals(ctx, store.ListProposalsParams{})
}

// apply performs the data mutation for one proposal inside the approval
// transaction. Dispatch is exhaustive over the discriminant; an unknown kind
// can only mean corrupted stored data.
func (m *Machine) apply(ctx context.Context, tx store.Tx, prop model.Proposal) error {
	switch prop.Kind {
	case model.ProposalKindFieldChange:
		return m.applyFieldChange(ctx, tx, *prop.FieldChange)
	case model.ProposalKindAddRelative:
		return m.applyAddRelative(ctx, tx, *prop.AddRelative)
	case model.ProposalKindLinkRelative:
		return m.applyLinkRelative(ctx, tx, *prop.LinkRelative)
	default:
		return fmt.Errorf("proposal %s has unknown kind %q", prop.ID, prop.Kind)
	}
}

func (m *Machine) applyFieldChange(ctx context.Context, tx store.Tx, change model.FieldChange) error {
	fields := make(map[string]any, len(change.Fields)+1)
	for k, v := range change.Fields {
		fields[k] = v
	}

	// Contact data never lands on the public person record; it routes to
	// the privileged collection.
	if contact, ok := fields["contact"]; ok {
		delete(fields, "contact")
		if err := tx.SetPrivateContact(ctx, change.TargetPersonID, map[string]any{
			"personId":  change.TargetPersonID,
			"contact":   contact,
			"updatedAt": time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to update private contact: %w", err)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	fields["updatedAt"] = time.Now()
	if err := tx.SetPerson(ctx, change.TargetPersonID, fields); err != nil {
		if errors.Is(err, store.ErrPersonNotFound) {
			return apperr.New(apperr.KindNotFound, "person %s does not exist", change.TargetPersonID)
		}
		return fmt.Errorf("failed to update person: %w", err)
	}
	return nil
}

func (m *Machine) applyAddRelative(ctx context.Context, tx store.Tx, add model.AddRelative) error {
	target, err := getPersonForApply(ctx, tx, add.TargetPersonID)
	if err != nil {
		return err
	}

	now := time.Now()
	relative := model.Person{
		ID:        uuid.New(),
		Name:      add.NewPerson.Name,
		Nickname:  add.NewPerson.Nickname,
		Gender:    add.NewPerson.Gender,
		BirthDate: add.NewPerson.BirthDate,
		DeathDate: add.NewPerson.DeathDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreatePerson(ctx, relative); err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return assignRelationship(ctx, tx, target, relative, add.Relationship)
}

func (m *Machine) applyLinkRelative(ctx context.Context, tx store.Tx, link model.LinkRelative) error {
	target, err := getPersonForApply(ctx, tx, link.TargetPersonID)
	if err != nil {
		return err
	}
	relative, err := getPersonForApply(ctx, tx, link.LinkedPersonID)
	if err != nil {
		return err
	}
	return assignRelationship(ctx, tx, target, relative, link.Relationship)
}

// assignRelationship wires relative to target. Parent and spouse roles come
// from gender, so a definite father/mother or husband/wife slot must be
// inferable; when it is not, the approval fails with a precondition error
// instead of guessing.
func assignRelationship(ctx context.Context, tx store.Tx, target, relative model.Person, rel model.RelationshipType) error {
	setParent := func(childID uuid.UUID, field string, parentID uuid.UUID) error {
		if err := tx.SetPerson(ctx, childID, map[string]any{
			field:       parentID,
			"updatedAt": time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to set %s: %w", field, err)
		}
		return nil
	}

	switch rel {
	case model.RelationshipFather:
		return setParent(target.ID, "fatherId", relative.ID)
	case model.RelationshipMother:
		return setParent(target.ID, "motherId", relative.ID)
	case model.RelationshipParent:
		switch relative.Gender {
		case model.GenderMale:
			return setParent(target.ID, "fatherId", relative.ID)
		case model.GenderFemale:
			return setParent(target.ID, "motherId", relative.ID)
		default:
			return apperr.New(apperr.KindFailedPrecondition, "cannot infer a parent role for gender %q", relative.Gender)
		}
	case model.RelationshipChild:
		switch target.Gender {
		case model.GenderMale:
			return setParent(relative.ID, "fatherId", target.ID)
		case model.GenderFemale:
			return setParent(relative.ID, "motherId", target.ID)
		default:
			return apperr.New(apperr.KindFailedPrecondition, "cannot infer a parent role for gender %q", target.Gender)
		}
	case model.RelationshipSpouse:
		union := model.Union{ID: uuid.New(), CreatedAt: time.Now()}
		switch target.Gender {
		case model.GenderMale:
			union.HusbandID, union.WifeID = target.ID, relative.ID
		case model.GenderFemale:
			union.HusbandID, union.WifeID = relative.ID, target.ID
		default:
			return apperr.New(apperr.KindFailedPrecondition, "cannot infer a spouse role for gender %q", target.Gender)
		}
		if err := tx.CreateUnion(ctx, union); err != nil {
			return fmt.Errorf("failed to create union: %w", err)
		}
		return nil
	default:
		return apperr.New(apperr.KindInvalidArgument, "unknown relationship type %q", rel)
	}
}

// markFailed parks the proposal in failed state after an infrastructure
// fault rolled back the approval. Best effort; losing the race to another
// resolver is fine.
func (m *Machine) markFailed(ctx context.Context, proposalID, approverID uuid.UUID, applyErr error) {
	err := m.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		prop, err := getProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if prop.Status != model.ProposalStatusPending {
			return nil
		}
		return tx.SetProposal(ctx, prop.ID, map[string]any{
			"status":     model.ProposalStatusFailed,
			"error":      applyErr.Error(),
			"resolverId": approverID,
			"resolvedAt": time.Now(),
		})
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to mark proposal as failed",
			slog.String("proposal_id", proposalID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func getProposal(ctx context.Context, tx store.Tx, proposalID uuid.UUID) (model.Proposal, error) {
	prop, err := tx.GetProposal(ctx, proposalID)
	if err != nil {
		if errors.Is(err, store.ErrProposalNotFound) {
			return model.Proposal{}, apperr.New(apperr.KindNotFound, "proposal %s does not exist", proposalID)
		}
		return model.Proposal{}, fmt.Errorf("failed to get proposal: %w", err)
	}
	return prop, nil
}

func getPersonForApply(ctx context.Context, tx store.Tx, personID uuid.UUID) (model.Person, error) {
	person, err := tx.GetPerson(ctx, personID)
	if err != nil {
		if errors.Is(err, store.ErrPersonNotFound) {
			return model.Person{}, apperr.New(apperr.KindNotFound, "person %s does not exist", personID)
		}
		return model.Person{}, fmt.Errorf("failed to get person: %w", err)
	}
	return person, nil
}
