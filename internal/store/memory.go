package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"giapha/internal/model"
)

// Memory is an in-process Store used by tests and the dev profile. A single
// mutex serializes transactions; the callback runs against a cloned dataset
// that is swapped in only when the callback succeeds, which gives the same
// all-or-nothing semantics the hosted store provides.
type Memory struct {
	mu   sync.RWMutex
	data *dataset
}

func NewMemory() *Memory {
	return &Memory{data: newDataset()}
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	m.data = work
	return nil
}

type dataset struct {
	persons       map[uuid.UUID]model.Person
	unions        map[uuid.UUID]model.Union
	contacts      map[uuid.UUID]model.PrivateContact
	accounts      map[uuid.UUID]model.Account
	proposals     map[uuid.UUID]model.Proposal
	stories       map[uuid.UUID]model.Story
	auditEvents   []model.AuditEvent
	notifications map[uuid.UUID]model.Notification
}

func newDataset() *dataset {
	return &dataset{
		persons:       map[uuid.UUID]model.Person{},
		unions:        map[uuid.UUID]model.Union{},
		contacts:      map[uuid.UUID]model.PrivateContact{},
		accounts:      map[uuid.UUID]model.Account{},
		proposals:     map[uuid.UUID]model.Proposal{},
		stories:       map[uuid.UUID]model.Story{},
		notifications: map[uuid.UUID]model.Notification{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.persons {
		c.persons[k] = v
	}
	for k, v := range d.unions {
		c.unions[k] = v
	}
	for k, v := range d.contacts {
		c.contacts[k] = v
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.proposals {
		c.proposals[k] = v
	}
	for k, v := range d.stories {
		c.stories[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	c.auditEvents = append(c.auditEvents, d.auditEvents...)
	return c
}

// mergeRecord applies a partial field map onto a record by round-tripping
// through its JSON document form. A nil field value clears the stored key.
func mergeRecord[T any](current T, fields map[string]any) (T, error) {
	var merged T

	raw, err := json.Marshal(current)
	if err != nil {
		return merged, fmt.Errorf("store: marshal record: %w", err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return merged, fmt.Errorf("store: decode record: %w", err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	raw, err = json.Marshal(doc)
	if err != nil {
		return merged, fmt.Errorf("store: marshal merged record: %w", err)
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return merged, fmt.Errorf("store: decode merged record: %w", err)
	}
	return merged, nil
}

// --- persons ---

func (d *dataset) ListPersons(ctx context.Context) ([]model.Person, error) {
	out := make([]model.Person, 0, len(d.persons))
	for _, p := range d.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (d *dataset) GetPerson(ctx context.Context, id uuid.UUID) (model.Person, error) {
	p, ok := d.persons[id]
	if !ok {
		return model.Person{}, ErrPersonNotFound
	}
	return p, nil
}

func (d *dataset) CreatePerson(ctx context.Context, person model.Person) error {
	d.persons[person.ID] = person
	return nil
}

func (d *dataset) SetPerson(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	p, ok := d.persons[id]
	if !ok {
		return ErrPersonNotFound
	}
	merged, err := mergeRecord(p, fields)
	if err != nil {
		return err
	}
	d.persons[id] = merged
	return nil
}

func (d *dataset) DeletePerson(ctx context.Context, id uuid.UUID) error {
	if _, ok := d.persons[id]; !ok {
		return ErrPersonNotFound
	}
	delete(d.persons, id)
	delete(d.contacts, id)
	return nil
}

// --- unions ---

func (d *dataset) ListUnions(ctx context.Context) ([]model.Union, error) {
	out := make([]model.Union, 0, len(d.unions))
	for _, u := range d.unions {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (d *dataset) CreateUnion(ctx context.Context, union model.Union) error {
	d.unions[union.ID] = union
	return nil
}

func (d *dataset) DeleteUnion(ctx context.Context, id uuid.UUID) error {
	if _, ok := d.unions[id]; !ok {
		return ErrUnionNotFound
	}
	delete(d.unions, id)
	return nil
}

// --- private contacts ---

func (d *dataset) GetPrivateContact(ctx context.Context, personID uuid.UUID) (model.PrivateContact, error) {
	c, ok := d.contacts[personID]
	if !ok {
		return model.PrivateContact{}, ErrContactNotFound
	}
	return c, nil
}

func (d *dataset) SetPrivateContact(ctx context.Context, personID uuid.UUID, fields map[string]any) error {
	c, ok := d.contacts[personID]
	if !ok {
		c = model.PrivateContact{PersonID: personID}
	}
	merged, err := mergeRecord(c, fields)
	if err != nil {
		return err
	}
	merged.PersonID = personID
	d.contacts[personID] = merged
	return nil
}

// --- accounts ---

func (d *dataset) ListAccounts(ctx context.Context) ([]model.Account, error) {
	out := make([]model.Account, 0, len(d.accounts))
	for _, a := range d.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (d *dataset) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return model.Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (d *dataset) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	for _, a := range d.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return model.Account{}, ErrAccountNotFound
}

func (d *dataset) CreateAccount(ctx context.Context, account model.Account) error {
	d.accounts[account.ID] = account
	return nil
}

func (d *dataset) SetAccount(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	a, ok := d.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	merged, err := mergeRecord(a, fields)
	if err != nil {
		return err
	}
	d.accounts[id] = merged
	return nil
}

// --- proposals ---

func (d *dataset) ListProposals(ctx context.Context, params ListProposalsParams) ([]model.Proposal, error) {
	out := make([]model.Proposal, 0, len(d.proposals))
	for _, p := range d.proposals {
		if params.Status.IsSet && p.Status != params.Status.Val {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (d *dataset) GetProposal(ctx context.Context, id uuid.UUID) (model.Proposal, error) {
	p, ok := d.proposals[id]
	if !ok {
		return model.Proposal{}, ErrProposalNotFound
	}
	return p, nil
}

func (d *dataset) CreateProposal(ctx context.Context, proposal model.Proposal) error {
	d.proposals[proposal.ID] = proposal
	return nil
}

func (d *dataset) SetProposal(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	p, ok := d.proposals[id]
	if !ok {
		return ErrProposalNotFound
	}
	merged, err := mergeRecord(p, fields)
	if err != nil {
		return err
	}
	d.proposals[id] = merged
	return nil
}

// --- stories ---

func (d *dataset) ListStories(ctx context.Context) ([]model.Story, error) {
	out := make([]model.Story, 0, len(d.stories))
	for _, s := range d.stories {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (d *dataset) CreateStory(ctx context.Context, story model.Story) error {
	d.stories[story.ID] = story
	return nil
}

func (d *dataset) DeleteStory(ctx context.Context, id uuid.UUID) error {
	if _, ok := d.stories[id]; !ok {
		return ErrStoryNotFound
	}
	delete(d.stories, id)
	return nil
}

// --- audit / notifications ---

func (d *dataset) AppendAuditEvent(ctx context.Context, event model.AuditEvent) error {
	d.auditEvents = append(d.auditEvents, event)
	return nil
}

func (d *dataset) CreateNotification(ctx context.Context, notification model.Notification) error {
	d.notifications[notification.ID] = notification
	return nil
}

func (d *dataset) ListNotifications(ctx context.Context, params ListNotificationsParams) ([]model.Notification, error) {
	out := make([]model.Notification, 0)
	for _, n := range d.notifications {
		if n.OwnerID != params.OwnerID {
			continue
		}
		if params.Unread && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// --- Memory: locked pass-through for the non-transactional surface ---

func (m *Memory) ListPersons(ctx context.Context) ([]model.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListPersons(ctx)
}

func (m *Memory) GetPerson(ctx context.Context, id uuid.UUID) (model.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetPerson(ctx, id)
}

func (m *Memory) CreatePerson(ctx context.Context, person model.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreatePerson(ctx, person)
}

func (m *Memory) SetPerson(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetPerson(ctx, id, fields)
}

func (m *Memory) DeletePerson(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeletePerson(ctx, id)
}

func (m *Memory) ListUnions(ctx context.Context) ([]model.Union, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListUnions(ctx)
}

func (m *Memory) CreateUnion(ctx context.Context, union model.Union) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateUnion(ctx, union)
}

func (m *Memory) DeleteUnion(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteUnion(ctx, id)
}

func (m *Memory) GetPrivateContact(ctx context.Context, personID uuid.UUID) (model.PrivateContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetPrivateContact(ctx, personID)
}

func (m *Memory) SetPrivateContact(ctx context.Context, personID uuid.UUID, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetPrivateContact(ctx, personID, fields)
}

func (m *Memory) ListAccounts(ctx context.Context) ([]model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListAccounts(ctx)
}

func (m *Memory) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetAccount(ctx, id)
}

func (m *Memory) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetAccountByEmail(ctx, email)
}

func (m *Memory) CreateAccount(ctx context.Context, account model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateAccount(ctx, account)
}

func (m *Memory) SetAccount(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetAccount(ctx, id, fields)
}

func (m *Memory) ListProposals(ctx context.Context, params ListProposalsParams) ([]model.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListProposals(ctx, params)
}

func (m *Memory) GetProposal(ctx context.Context, id uuid.UUID) (model.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetProposal(ctx, id)
}

func (m *Memory) CreateProposal(ctx context.Context, proposal model.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateProposal(ctx, proposal)
}

func (m *Memory) SetProposal(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetProposal(ctx, id, fields)
}

func (m *Memory) ListStories(ctx context.Context) ([]model.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListStories(ctx)
}

func (m *Memory) CreateStory(ctx context.Context, story model.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateStory(ctx, story)
}

func (m *Memory) DeleteStory(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteStory(ctx, id)
}

func (m *Memory) AppendAuditEvent(ctx context.Context, event model.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AppendAuditEvent(ctx, event)
}

func (m *Memory) CreateNotification(ctx context.Context, notification model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateNotification(ctx, notification)
}

func (m *Memory) ListNotifications(ctx context.Context, params ListNotificationsParams) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListNotifications(ctx, params)
}

var _ Store = (*Memory)(nil)
var _ Tx = (*dataset)(nil)
