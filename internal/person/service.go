// Package person owns the public genealogy records: reads with privileged
// contact merging, direct edits guarded by the kinship predicate, and the
// admin-only create and delete paths.
package person

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/audit"
	"giapha/internal/cache"
	"giapha/internal/model"
	"giapha/internal/monitoring"
	"giapha/internal/relation"
	"giapha/internal/store"
	"giapha/internal/tree"
	"giapha/internal/util"
)

type Service struct {
	logger    *slog.Logger
	store     store.Store
	auditor   *audit.Auditor
	treeCache *cache.TreeCache
	telemetry monitoring.Telemetry
}

func NewService(logger *slog.Logger, st store.Store, auditor *audit.Auditor, treeCache *cache.TreeCache, telemetry monitoring.Telemetry) Service {
	return Service{logger: logger, store: st, auditor: auditor, treeCache: treeCache, telemetry: telemetry}
}

// View is a person plus the restricted contact block, present only when the
// viewer is entitled to it.
type View struct {
	model.Person
	Contact *model.Contact `json:"contact,omitempty"`
}

// Kin groups the immediate relatives shown on a person's detail page.
type Kin struct {
	Parents  []model.Person `json:"parents"`
	Children []model.Person `json:"children"`
	Siblings []model.Person `json:"siblings"`
	Spouses  []model.Person `json:"spouses"`
}

// Tree returns the built forest, serving the cached snapshot when one is
// fresh. Every mutation path below invalidates it.
func (s *Service) Tree(ctx context.Context) (tree.Result, error) {
	if result, ok := s.treeCache.Get(ctx); ok {
		return result, nil
	}

	persons, unions, err := s.snapshot(ctx)
	if err != nil {
		return tree.Result{}, err
	}

	start := time.Now()
	result, err := tree.Build(persons, unions)
	if err != nil {
		return tree.Result{}, err
	}
	s.telemetry.RecordTreeBuild(ctx, len(persons), time.Since(start))

	s.treeCache.Set(ctx, result)
	return result, nil
}

func (s *Service) List(ctx context.Context) ([]model.Person, error) {
	return s.store.ListPersons(ctx)
}

// Get returns the person, merging in the restricted contact block when the
// viewer is an admin or a direct relative.
func (s *Service) Get(ctx context.Context, viewer model.Account, personID uuid.UUID) (View, error) {
	person, err := s.getPerson(ctx, s.store, personID)
	if err != nil {
		return View{}, err
	}
	view := View{Person: person}

	entitled, err := s.entitledToContact(ctx, viewer, person)
	if err != nil {
		return View{}, err
	}
	if !entitled {
		return view, nil
	}

	contact, err := s.store.GetPrivateContact(ctx, personID)
	if err != nil {
		if errors.Is(err, store.ErrContactNotFound) {
			return view, nil
		}
		return View{}, fmt.Errorf("failed to get private contact: %w", err)
	}
	view.Contact = &contact.Contact
	return view, nil
}

// Kin lists the person's immediate relatives from the current snapshot.
func (s *Service) Kin(ctx context.Context, personID uuid.UUID) (Kin, error) {
	persons, unions, err := s.snapshot(ctx)
	if err != nil {
		return Kin{}, err
	}

	g := relation.NewGraph(persons, unions)
	byID := make(map[uuid.UUID]model.Person, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
	}
	target, ok := byID[personID]
	if !ok {
		return Kin{}, apperr.New(apperr.KindNotFound, "person %s does not exist", personID)
	}

	kin := Kin{
		Siblings: g.Siblings(personID),
		Spouses:  g.Spouses(personID),
	}
	if target.FatherID.IsSet {
		if father, ok := byID[target.FatherID.Val]; ok {
			kin.Parents = append(kin.Parents, father)
		}
	}
	if target.MotherID.IsSet {
		if mother, ok := byID[target.MotherID.Val]; ok {
			kin.Parents = append(kin.Parents, mother)
		}
	}
	for _, p := range persons {
		if refersTo(p.FatherID, personID) || refersTo(p.MotherID, personID) {
			kin.Children = append(kin.Children, p)
		}
	}
	return kin, nil
}

// CanEdit evaluates the direct-edit predicate for UI gating. DirectEdit
// re-checks it inside the write transaction regardless of what the client
// was told.
func (s *Service) CanEdit(ctx context.Context, actor model.Account, personID uuid.UUID) (bool, error) {
	if actor.Role.IsAdmin() {
		return true, nil
	}
	if !actor.PersonID.IsSet {
		return false, nil
	}

	persons, unions, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}
	actorPerson, target, err := resolvePair(persons, actor.PersonID.Val, personID)
	if err != nil {
		return false, err
	}
	return relation.CanDirectlyEdit(actor, actorPerson, target, unions), nil
}

// DirectEdit merges a partial field map onto the person, enforcing the
// kinship predicate server-side. Contact data routes to the privileged
// record.
func (s *Service) DirectEdit(ctx context.Context, actor model.Account, personID uuid.UUID, fields map[string]any) error {
	if actor.ID == uuid.Nil {
		return apperr.New(apperr.KindUnauthenticated, "no principal supplied")
	}
	if !actor.Active() {
		return apperr.New(apperr.KindPermissionDenied, "account %s is not active", actor.ID)
	}
	if len(fields) == 0 {
		return apperr.New(apperr.KindInvalidArgument, "no fields to change")
	}
	for _, immutable := range []string{"id", "createdAt"} {
		if _, ok := fields[immutable]; ok {
			return apperr.New(apperr.KindInvalidArgument, "field %q cannot be changed", immutable)
		}
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		target, err := s.getPerson(ctx, tx, personID)
		if err != nil {
			return err
		}

		if !actor.Role.IsAdmin() {
			if !actor.PersonID.IsSet {
				return apperr.New(apperr.KindFailedPrecondition, "account %s is not linked to a person", actor.ID)
			}
			actorPerson, err := s.getPerson(ctx, tx, actor.PersonID.Val)
			if err != nil {
				return err
			}
			unions, err := tx.ListUnions(ctx)
			if err != nil {
				return fmt.Errorf("failed to list unions: %w", err)
			}
			if !relation.CanDirectlyEdit(actor, actorPerson, target, unions) {
				return apperr.New(apperr.KindPermissionDenied, "account %s may not edit person %s directly", actor.ID, personID)
			}
		}

		changed := make(map[string]any, len(fields)+1)
		for k, v := range fields {
			changed[k] = v
		}
		if contact, ok := changed["contact"]; ok {
			delete(changed, "contact")
			if err := tx.SetPrivateContact(ctx, personID, map[string]any{
				"personId":  personID,
				"contact":   contact,
				"updatedAt": time.Now(),
			}); err != nil {
				return fmt.Errorf("failed to update private contact: %w", err)
			}
		}
		if len(changed) > 0 {
			changed["updatedAt"] = time.Now()
			if err := tx.SetPerson(ctx, personID, changed); err != nil {
				return fmt.Errorf("failed to update person: %w", err)
			}
		}

		return s.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: actor.ID,
			Type:    audit.EventTypePersonUpdate,
			Data:    map[string]any{"personId": personID.String()},
		})
	})
	if err != nil {
		return err
	}

	s.treeCache.Invalidate(ctx)
	s.logger.InfoContext(ctx, "person updated",
		slog.String("person_id", personID.String()),
		slog.String("actor_id", actor.ID.String()),
	)
	return nil
}

type CreateParams struct {
	Name           string
	Nickname       string
	Gender         model.Gender
	BirthDate      string
	DeathDate      string
	LunarBirthDate string
	LunarDeathDate string
	IsDeceased     bool
	FatherID       uuid.UUID
	MotherID       uuid.UUID
	Biography      string
	CurrentAddress string
}

// Create adds a person directly, bypassing the proposal path. Admin only.
func (s *Service) Create(ctx context.Context, actor model.Account, params CreateParams) (uuid.UUID, error) {
	if !actor.Role.IsAdmin() {
		return uuid.Nil, apperr.New(apperr.KindPermissionDenied, "only admins create persons directly")
	}
	if params.Name == "" {
		return uuid.Nil, apperr.New(apperr.KindInvalidArgument, "person has no name")
	}
	if !params.Gender.IsValid() {
		return uuid.Nil, apperr.New(apperr.KindInvalidArgument, "unknown gender %q", params.Gender)
	}

	now := time.Now()
	p := model.Person{
		ID:             uuid.New(),
		Name:           params.Name,
		Nickname:       params.Nickname,
		Gender:         params.Gender,
		BirthDate:      params.BirthDate,
		DeathDate:      params.DeathDate,
		LunarBirthDate: params.LunarBirthDate,
		LunarDeathDate: params.LunarDeathDate,
		IsDeceased:     params.IsDeceased,
		Biography:      params.Biography,
		CurrentAddress: params.CurrentAddress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if params.FatherID != uuid.Nil {
			if _, err := s.getPerson(ctx, tx, params.FatherID); err != nil {
				return err
			}
			p.FatherID = util.Some(params.FatherID)
		}
		if params.MotherID != uuid.Nil {
			if _, err := s.getPerson(ctx, tx, params.MotherID); err != nil {
				return err
			}
			p.MotherID = util.Some(params.MotherID)
		}

		if err := tx.CreatePerson(ctx, p); err != nil {
			return fmt.Errorf("failed to create person: %w", err)
		}
		return s.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: actor.ID,
			Type:    audit.EventTypePersonCreate,
			Data:    map[string]any{"personId": p.ID.String(), "name": p.Name},
		})
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.treeCache.Invalidate(ctx)
	return p.ID, nil
}

// Delete removes a person and severs every reference: children lose the
// parent link, unions involving the person disappear. Admin only.
func (s *Service) Delete(ctx context.Context, actor model.Account, personID uuid.UUID) error {
	if !actor.Role.IsAdmin() {
		return apperr.New(apperr.KindPermissionDenied, "only admins delete persons")
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := s.getPerson(ctx, tx, personID); err != nil {
			return err
		}

		persons, err := tx.ListPersons(ctx)
		if err != nil {
			return fmt.Errorf("failed to list persons: %w", err)
		}
		for _, p := range persons {
			severed := map[string]any{}
			if refersTo(p.FatherID, personID) {
				severed["fatherId"] = nil
			}
			if refersTo(p.MotherID, personID) {
				severed["motherId"] = nil
			}
			if len(severed) == 0 {
				continue
			}
			severed["updatedAt"] = time.Now()
			if err := tx.SetPerson(ctx, p.ID, severed); err != nil {
				return fmt.Errorf("failed to sever parent link on %s: %w", p.ID, err)
			}
		}

		unions, err := tx.ListUnions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list unions: %w", err)
		}
		for _, u := range unions {
			if u.HusbandID == personID || u.WifeID == personID {
				if err := tx.DeleteUnion(ctx, u.ID); err != nil {
					return fmt.Errorf("failed to delete union %s: %w", u.ID, err)
				}
			}
		}

		if err := tx.DeletePerson(ctx, personID); err != nil {
			return fmt.Errorf("failed to delete person: %w", err)
		}
		return s.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: actor.ID,
			Type:    audit.EventTypePersonDelete,
			Data:    map[string]any{"personId": personID.String()},
		})
	})
	if err != nil {
		return err
	}

	s.treeCache.Invalidate(ctx)
	s.logger.InfoContext(ctx, "person deleted",
		slog.String("person_id", personID.String()),
		slog.String("actor_id", actor.ID.String()),
	)
	return nil
}

func (s *Service) entitledToContact(ctx context.Context, viewer model.Account, target model.Person) (bool, error) {
	if viewer.Role.IsAdmin() {
		return true, nil
	}
	if !viewer.PersonID.IsSet {
		return false, nil
	}
	if viewer.PersonID.Val == target.ID {
		return true, nil
	}

	persons, unions, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}
	actorPerson, _, err := resolvePair(persons, viewer.PersonID.Val, target.ID)
	if err != nil {
		return false, err
	}
	return relation.CanDirectlyEdit(viewer, actorPerson, target, unions), nil
}

func (s *Service) snapshot(ctx context.Context) ([]model.Person, []model.Union, error) {
	persons, err := s.store.ListPersons(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list persons: %w", err)
	}
	unions, err := s.store.ListUnions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list unions: %w", err)
	}
	return persons, unions, nil
}

func (s *Service) getPerson(ctx context.Context, tx store.Tx, personID uuid.UUID) (model.Person, error) {
	person, err := tx.GetPerson(ctx, personID)
	if err != nil {
		if errors.Is(err, store.ErrPersonNotFound) {
			return model.Person{}, apperr.New(apperr.KindNotFound, "person %s does not exist", personID)
		}
		return model.Person{}, fmt.Errorf("failed to get person: %w", err)
	}
	return person, nil
}

func resolvePair(persons []model.Person, actorID, targetID uuid.UUID) (model.Person, model.Person, error) {
	var actor, target model.Person
	var haveActor, haveTarget bool
	for _, p := range persons {
		if p.ID == actorID {
			actor, haveActor = p, true
		}
		if p.ID == targetID {
			target, haveTarget = p, true
		}
	}
	if !haveTarget {
		return actor, target, apperr.New(apperr.KindNotFound, "person %s does not exist", targetID)
	}
	if !haveActor {
		return actor, target, apperr.New(apperr.KindFailedPrecondition, "linked person %s does not exist", actorID)
	}
	return actor, target, nil
}

func refersTo(ref util.Optional[uuid.UUID], id uuid.UUID) bool {
	return ref.IsSet && ref.Val == id
}
