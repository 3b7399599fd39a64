package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"giapha/internal/account"
	"giapha/internal/apperr"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,no_disposable_email"`
	DisplayName string `json:"displayName" validate:"required,min=2,max=100"`
	Password    string `json:"password" validate:"required,password_strength"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}
	if err := h.validator.Validate(req); err != nil {
		return h.respondError(c, apperr.Wrap(apperr.KindInvalidArgument, err, "invalid registration"))
	}

	accountID, err := h.accounts.Register(c.UserContext(), account.RegisterParam{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		if errors.Is(err, account.ErrEmailAlreadyInUse) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email already in use"})
		}
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": accountID})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}
	if err := h.validator.Validate(req); err != nil {
		return h.respondError(c, apperr.Wrap(apperr.KindInvalidArgument, err, "invalid login"))
	}

	accountID, err := h.authenticator.Login(c.UserContext(), account.LoginParam{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) || errors.Is(err, account.ErrInvalidPassword) {
			return h.respondError(c, apperr.New(apperr.KindUnauthenticated, "invalid credentials"))
		}
		return h.respondError(c, err)
	}

	sess, err := h.sessions.Get(c)
	if err != nil {
		return h.respondError(c, err)
	}
	sess.Set("account_id", accountID.String())
	if err := sess.Save(); err != nil {
		return h.respondError(c, err)
	}

	acc, err := h.accounts.Get(c.UserContext(), accountID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(newAccountView(acc))
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return h.respondError(c, err)
	}
	if err := sess.Destroy(); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
