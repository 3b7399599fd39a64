package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"giapha/internal/model"
	"giapha/internal/store"
)

// Manager delivers in-app notifications: proposers hear about resolutions,
// accounts hear about approval. Delivery is in-store only; there is no
// external channel.
type Manager struct {
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) Manager {
	return Manager{logger: logger}
}

type NotifyParam struct {
	OwnerID uuid.UUID
	Type    model.NotificationType
	Title   string
	Message string
}

func (m *Manager) Notify(ctx context.Context, tx store.Tx, params NotifyParam) error {
	if err := tx.CreateNotification(ctx, model.Notification{
		ID:        uuid.New(),
		OwnerID:   params.OwnerID,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (m *Manager) Unread(ctx context.Context, tx store.Tx, ownerID uuid.UUID) ([]model.Notification, error) {
	return tx.ListNotifications(ctx, store.ListNotificationsParams{OwnerID: ownerID, Unread: true})
}

func (m *Manager) All(ctx context.Context, tx store.Tx, ownerID uuid.UUID) ([]model.Notification, error) {
	return tx.ListNotifications(ctx, store.ListNotificationsParams{OwnerID: ownerID})
}
