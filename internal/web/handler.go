// Package web is the JSON HTTP surface. Handlers translate requests into
// service calls and taxonomy errors into status codes; no genealogy rule
// lives here.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2/middleware/session"

	"giapha/internal/account"
	"giapha/internal/notifications"
	"giapha/internal/person"
	"giapha/internal/proposal"
	"giapha/internal/storage"
	"giapha/internal/store"
	"giapha/internal/story"
	"giapha/internal/validator"
)

type Handler struct {
	logger        *slog.Logger
	validator     *validator.Validator
	sessions      *session.Store
	store         store.Store
	accounts      *account.Manager
	authenticator *account.Authenticator
	persons       *person.Service
	proposals     *proposal.Machine
	stories       *story.Service
	notifier      *notifications.Manager
	media         storage.Storage
}

func NewHandler(
	logger *slog.Logger,
	v *validator.Validator,
	sessions *session.Store,
	st store.Store,
	accounts *account.Manager,
	authenticator *account.Authenticator,
	persons *person.Service,
	proposals *proposal.Machine,
	stories *story.Service,
	notifier *notifications.Manager,
	media storage.Storage,
) *Handler {
	return &Handler{
		logger:        logger,
		validator:     v,
		sessions:      sessions,
		store:         st,
		accounts:      accounts,
		authenticator: authenticator,
		persons:       persons,
		proposals:     proposals,
		stories:       stories,
		notifier:      notifier,
		media:         media,
	}
}
