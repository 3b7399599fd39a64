package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"giapha/internal/model"
	"giapha/internal/store"
)

type EventType string

const (
	EventTypeAccountRegister   EventType = "account.register"
	EventTypeAccountLogin      EventType = "account.login"
	EventTypeAccountApprove    EventType = "account.approve"
	EventTypeAccountLinkPerson EventType = "account.link_person"
	EventTypeAccountRoleChange EventType = "account.role_change"
	EventTypePersonCreate      EventType = "person.create"
	EventTypePersonUpdate      EventType = "person.update"
	EventTypePersonDelete      EventType = "person.delete"
	EventTypeProposalSubmit    EventType = "proposal.submit"
	EventTypeProposalApprove   EventType = "proposal.approve"
	EventTypeProposalReject    EventType = "proposal.reject"
	EventTypeStoryCreate       EventType = "story.create"
	EventTypeStoryDelete       EventType = "story.delete"
)

// Auditor appends immutable change records. Callers inside a transaction pass
// the transaction's Tx so the audit row commits or rolls back with the change
// it describes.
type Auditor struct {
	logger *slog.Logger
}

func NewAuditor(logger *slog.Logger) Auditor {
	return Auditor{logger: logger}
}

type RecordParams struct {
	ActorID uuid.UUID
	Type    EventType
	Data    map[string]any
}

func (a *Auditor) Record(ctx context.Context, tx store.Tx, params RecordParams) error {
	var data json.RawMessage
	if params.Data != nil {
		raw, err := json.Marshal(params.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal audit event data: %w", err)
		}
		data = raw
	}

	if err := tx.AppendAuditEvent(ctx, model.AuditEvent{
		ID:        uuid.New(),
		ActorID:   params.ActorID,
		Type:      string(params.Type),
		Data:      data,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}
