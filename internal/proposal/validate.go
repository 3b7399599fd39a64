package proposal

import (
	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/model"
)

// validateSubmit checks that exactly the payload selected by the
// discriminant is present and complete. Every violation is an
// invalid-argument; reference resolution (does the linked person exist)
// happens later against the store.
func validateSubmit(params SubmitParams) error {
	if params.ProposerID == uuid.Nil {
		return apperr.New(apperr.KindUnauthenticated, "proposal has no proposer")
	}

	switch params.Kind {
	case model.ProposalKindFieldChange:
		if params.AddRelative != nil || params.LinkRelative != nil {
			return apperr.New(apperr.KindInvalidArgument, "field-change proposal carries a foreign payload")
		}
		change := params.FieldChange
		if change == nil {
			return apperr.New(apperr.KindInvalidArgument, "field-change proposal is missing its payload")
		}
		if change.TargetPersonID == uuid.Nil {
			return apperr.New(apperr.KindInvalidArgument, "field-change proposal is missing targetPersonId")
		}
		if len(change.Fields) == 0 {
			return apperr.New(apperr.KindInvalidArgument, "field-change proposal changes no fields")
		}
		for _, immutable := range []string{"id", "createdAt"} {
			if _, ok := change.Fields[immutable]; ok {
				return apperr.New(apperr.KindInvalidArgument, "field %q cannot be changed by proposal", immutable)
			}
		}
		return nil

	case model.ProposalKindAddRelative:
		if params.FieldChange != nil || params.LinkRelative != nil {
			return apperr.New(apperr.KindInvalidArgument, "add-person proposal carries a foreign payload")
		}
		add := params.AddRelative
		if add == nil {
			return apperr.New(apperr.KindInvalidArgument, "add-person proposal is missing its payload")
		}
		if add.TargetPersonID == uuid.Nil {
			return apperr.New(apperr.KindInvalidArgument, "add-person proposal is missing targetPersonId")
		}
		if !add.Relationship.IsValid() {
			return apperr.New(apperr.KindInvalidArgument, "unknown relationship type %q", add.Relationship)
		}
		if add.NewPerson.Name == "" {
			return apperr.New(apperr.KindInvalidArgument, "new person has no name")
		}
		if !add.NewPerson.Gender.IsValid() {
			return apperr.New(apperr.KindInvalidArgument, "unknown gender %q", add.NewPerson.Gender)
		}
		return nil

	case model.ProposalKindLinkRelative:
		if params.FieldChange != nil || params.AddRelative != nil {
			return apperr.New(apperr.KindInvalidArgument, "link proposal carries a foreign payload")
		}
		link := params.LinkRelative
		if link == nil {
			return apperr.New(apperr.KindInvalidArgument, "link proposal is missing its payload")
		}
		if link.TargetPersonID == uuid.Nil {
			return apperr.New(apperr.KindInvalidArgument, "link proposal is missing targetPersonId")
		}
		if !link.Relationship.IsValid() {
			return apperr.New(apperr.KindInvalidArgument, "unknown relationship type %q", link.Relationship)
		}
		if link.LinkedPersonID == uuid.Nil {
			return apperr.New(apperr.KindInvalidArgument, "link proposal is missing linkedPersonId")
		}
		if link.LinkedPersonID == link.TargetPersonID {
			return apperr.New(apperr.KindInvalidArgument, "a person cannot be linked to themselves")
		}
		return nil

	default:
		return apperr.New(apperr.KindInvalidArgument, "unknown proposal kind %q", params.Kind)
	}
}
