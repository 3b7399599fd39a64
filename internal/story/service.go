// Package story manages the family chronicle entries members see on the
// news page.
package story

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
	"giapha/internal/store"
)

type Service struct {
	logger  *slog.Logger
	store   store.Store
	auditor *audit.Auditor
}

func NewService(logger *slog.Logger, st store.Store, auditor *audit.Auditor) Service {
	return Service{logger: logger, store: st, auditor: auditor}
}

type PublishParams struct {
	Title         string
	Body          string
	CoverImageURL string
}

// Publish creates a chronicle entry. Admin only; member contributions go
// through the proposal workflow as biography changes instead.
func (s *Service) Publish(ctx context.Context, actor model.Account, params PublishParams) (uuid.UUID, error) {
	if !actor.Role.IsAdmin() {
		return uuid.Nil, apperr.New(apperr.KindPermissionDenied, "only admins publish stories")
	}
	if params.Title == "" {
		return uuid.Nil, apperr.New(apperr.KindInvalidArgument, "story has no title")
	}
	if params.Body == "" {
		return uuid.Nil, apperr.New(apperr.KindInvalidArgument, "story has no body")
	}

	st := model.Story{
		ID:            uuid.New(),
		AuthorID:      actor.ID,
		Title:         params.Title,
		Body:          params.Body,
		CoverImageURL: params.CoverImageURL,
		CreatedAt:     time.Now(),
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateStory(ctx, st); err != nil {
			return fmt.Errorf("failed to create story: %w", err)
		}
		return s.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: actor.ID,
			Type:    audit.EventTypeStoryCreate,
			Data:    map[string]any{"storyId": st.ID.String(), "title": st.Title},
		})
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.InfoContext(ctx, "story published",
		slog.String("story_id", st.ID.String()),
		slog.String("author_id", actor.ID.String()),
	)
	return st.ID, nil
}

// List returns stories newest first.
func (s *Service) List(ctx context.Context) ([]model.Story, error) {
	return s.store.ListStories(ctx)
}

func (s *Service) Delete(ctx context.Context, actor model.Account, storyID uuid.UUID) error {
	if !actor.Role.IsAdmin() {
		return apperr.New(apperr.KindPermissionDenied, "only admins delete stories")
	}

	return s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.DeleteStory(ctx, storyID); err != nil {
			if errors.Is(err, store.ErrStoryNotFound) {
				return apperr.New(apperr.KindNotFound, "story %s does not exist", storyID)
			}
			return fmt.Errorf("failed to delete story: %w", err)
		}
		return s.auditor.Record(ctx, tx, audit.RecordParams{
			ActorID: actor.ID,
			Type:    audit.EventTypeStoryDelete,
			Data:    map[string]any{"storyId": storyID.String()},
		})
	})
}
