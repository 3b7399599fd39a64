package model

import (
	"time"

	"github.com/google/uuid"

	"giapha/internal/util"
)

type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusFailed   ProposalStatus = "failed"
)

// Resolved reports whether the proposal reached a terminal state. Terminal
// states are final; there is no un-approve.
func (s ProposalStatus) Resolved() bool {
	return s != ProposalStatusPending
}

type ProposalKind string

const (
	ProposalKindFieldChange  ProposalKind = "field-change"
	ProposalKindAddRelative  ProposalKind = "add-person-and-relationship"
	ProposalKindLinkRelative ProposalKind = "link-relationship"
)

type RelationshipType string

const (
	RelationshipFather RelationshipType = "father"
	RelationshipMother RelationshipType = "mother"
	RelationshipSpouse RelationshipType = "spouse"
	RelationshipChild  RelationshipType = "child"
	RelationshipParent RelationshipType = "parent"
)

func (r RelationshipType) IsValid() bool {
	switch r {
	case RelationshipFather, RelationshipMother, RelationshipSpouse, RelationshipChild, RelationshipParent:
		return true
	default:
		return false
	}
}

// FieldChange merges a partial field map onto the target person. A
// "contact" key routes to the privileged contact record instead of the
// public Person document.
type FieldChange struct {
	TargetPersonID uuid.UUID      `json:"targetPersonId"`
	Fields         map[string]any `json:"fields"`
}

// NewPersonData is the minimal payload for creating a person through a
// proposal. Name and gender are required; the dates are free text or ISO.
type NewPersonData struct {
	Name      string `json:"name"`
	Nickname  string `json:"nickname,omitempty"`
	Gender    Gender `json:"gender"`
	BirthDate string `json:"birthDate,omitempty"`
	DeathDate string `json:"deathDate,omitempty"`
}

type AddRelative struct {
	TargetPersonID uuid.UUID        `json:"targetPersonId"`
	Relationship   RelationshipType `json:"relationshipType"`
	NewPerson      NewPersonData    `json:"newPersonData"`
}

type LinkRelative struct {
	TargetPersonID uuid.UUID        `json:"targetPersonId"`
	Relationship   RelationshipType `json:"relationshipType"`
	LinkedPersonID uuid.UUID        `json:"linkedPersonId"`
}

// Proposal is a tagged union: Kind selects exactly one payload pointer.
// Payloads inconsistent with the discriminant are rejected at submit time.
type Proposal struct {
	ID           uuid.UUID                `json:"id"`
	ProposerID   uuid.UUID                `json:"proposerId"`
	Note         string                   `json:"proposerNote,omitempty"`
	Status       ProposalStatus           `json:"status"`
	Kind         ProposalKind             `json:"kind"`
	FieldChange  *FieldChange             `json:"fieldChange,omitempty"`
	AddRelative  *AddRelative             `json:"addRelative,omitempty"`
	LinkRelative *LinkRelative            `json:"linkRelative,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
	CreatedAt    time.Time                `json:"createdAt"`
	ResolvedAt   util.Optional[time.Time] `json:"resolvedAt"`
	ResolverID   util.Optional[uuid.UUID] `json:"resolverId"`
}

// TargetPersonID returns the person the proposal is about, regardless of
// payload variant.
func (p Proposal) TargetPersonID() uuid.UUID {
	switch p.Kind {
	case ProposalKindFieldChange:
		if p.FieldChange != nil {
			return p.FieldChange.TargetPersonID
		}
	case ProposalKindAddRelative:
		if p.AddRelative != nil {
			return p.AddRelative.TargetPersonID
		}
	case ProposalKindLinkRelative:
		if p.LinkRelative != nil {
			return p.LinkRelative.TargetPersonID
		}
	}
	return uuid.Nil
}
