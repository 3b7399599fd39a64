package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/model"
)

// accountView is the wire shape of an account. The password hash never
// leaves the server.
type accountView struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        model.Role `json:"role"`
	PersonID    *uuid.UUID `json:"personId,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func newAccountView(acc model.Account) accountView {
	view := accountView{
		ID:          acc.ID,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		Role:        acc.Role,
		Status:      string(acc.Status),
		CreatedAt:   acc.CreatedAt,
	}
	if acc.PersonID.IsSet {
		id := acc.PersonID.Val
		view.PersonID = &id
	}
	return view
}

func (h *Handler) Me(c *fiber.Ctx) error {
	return c.JSON(newAccountView(currentAccount(c)))
}

func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.accounts.List(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}

	views := make([]accountView, len(accounts))
	for i, acc := range accounts {
		views[i] = newAccountView(acc)
	}
	return c.JSON(views)
}

func (h *Handler) ApproveAccount(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed account id"))
	}

	if err := h.accounts.Approve(c.UserContext(), accountID, currentAccount(c).ID); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type linkPersonRequest struct {
	PersonID uuid.UUID `json:"personId" validate:"required"`
}

// LinkPerson is the self-service claim of one's own node in the tree.
func (h *Handler) LinkPerson(c *fiber.Ctx) error {
	var req linkPersonRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}
	if req.PersonID == uuid.Nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "personId is required"))
	}

	if err := h.accounts.LinkPerson(c.UserContext(), currentAccount(c).ID, req.PersonID); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AssignPerson is the admin override, replacing whatever link the account had.
func (h *Handler) AssignPerson(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed account id"))
	}

	var req linkPersonRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}
	if req.PersonID == uuid.Nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "personId is required"))
	}

	if err := h.accounts.AssignPerson(c.UserContext(), accountID, req.PersonID, currentAccount(c).ID); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type changeRoleRequest struct {
	Role model.Role `json:"role" validate:"required"`
}

func (h *Handler) ChangeRole(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed account id"))
	}

	var req changeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}

	if err := h.accounts.ChangeRole(c.UserContext(), accountID, req.Role, currentAccount(c)); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) UnlinkedPersons(c *fiber.Ctx) error {
	persons, err := h.accounts.UnlinkedPersons(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(persons)
}

func (h *Handler) Notifications(c *fiber.Ctx) error {
	acc := currentAccount(c)

	var notifs []model.Notification
	var err error
	if c.QueryBool("unread") {
		notifs, err = h.notifier.Unread(c.UserContext(), h.store, acc.ID)
	} else {
		notifs, err = h.notifier.All(c.UserContext(), h.store, acc.ID)
	}
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(notifs)
}
