// Package store is the document-store port for the genealogy collections.
// Services receive a Store by injection; nothing in the application holds a
// package-level handle. The transaction callback receives a Tx view whose
// writes become visible atomically, or not at all.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"giapha/internal/model"
	"giapha/internal/util"
)

var (
	ErrPersonNotFound   = errors.New("person not found")
	ErrUnionNotFound    = errors.New("union not found")
	ErrContactNotFound  = errors.New("private contact not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrStoryNotFound    = errors.New("story not found")
)

type ListProposalsParams struct {
	Status util.Optional[model.ProposalStatus]
}

type ListNotificationsParams struct {
	OwnerID uuid.UUID
	Unread  bool
}

// Tx is the collection access surface. Set* operations take a partial field
// map and merge it onto the stored document, Firestore set-merge style: a
// present key replaces the stored value, a nil value clears it, absent keys
// are left alone.
type Tx interface {
	ListPersons(ctx context.Context) ([]model.Person, error)
	GetPerson(ctx context.Context, id uuid.UUID) (model.Person, error)
	CreatePerson(ctx context.Context, person model.Person) error
	SetPerson(ctx context.Context, id uuid.UUID, fields map[string]any) error
	DeletePerson(ctx context.Context, id uuid.UUID) error

	ListUnions(ctx context.Context) ([]model.Union, error)
	CreateUnion(ctx context.Context, union model.Union) error
	DeleteUnion(ctx context.Context, id uuid.UUID) error

	GetPrivateContact(ctx context.Context, personID uuid.UUID) (model.PrivateContact, error)
	SetPrivateContact(ctx context.Context, personID uuid.UUID, fields map[string]any) error

	ListAccounts(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (model.Account, error)
	CreateAccount(ctx context.Context, account model.Account) error
	SetAccount(ctx context.Context, id uuid.UUID, fields map[string]any) error

	ListProposals(ctx context.Context, params ListProposalsParams) ([]model.Proposal, error)
	GetProposal(ctx context.Context, id uuid.UUID) (model.Proposal, error)
	CreateProposal(ctx context.Context, proposal model.Proposal) error
	SetProposal(ctx context.Context, id uuid.UUID, fields map[string]any) error

	ListStories(ctx context.Context) ([]model.Story, error)
	CreateStory(ctx context.Context, story model.Story) error
	DeleteStory(ctx context.Context, id uuid.UUID) error

	AppendAuditEvent(ctx context.Context, event model.AuditEvent) error

	CreateNotification(ctx context.Context, notification model.Notification) error
	ListNotifications(ctx context.Context, params ListNotificationsParams) ([]model.Notification, error)
}

// Store adds the transaction entry point to the plain collection surface.
// RunTransaction is the only concurrency-control primitive the application
// relies on: the callback must re-read anything it predicates a write on.
type Store interface {
	Tx

	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
