package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/model"
)

const localsAccount = "account"

// RequireAccount resolves the session into an account and stores it in
// request locals. The account is re-fetched per request so role and status
// changes take effect without a new login.
func (h *Handler) RequireAccount() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := h.sessions.Get(c)
		if err != nil {
			return h.respondError(c, err)
		}

		raw, ok := sess.Get("account_id").(string)
		if !ok {
			return h.respondError(c, apperr.New(apperr.KindUnauthenticated, "no session"))
		}
		accountID, err := uuid.Parse(raw)
		if err != nil {
			return h.respondError(c, apperr.New(apperr.KindUnauthenticated, "corrupt session"))
		}

		acc, err := h.accounts.Get(c.UserContext(), accountID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return h.respondError(c, apperr.New(apperr.KindUnauthenticated, "session account no longer exists"))
			}
			return h.respondError(c, err)
		}

		c.Locals(localsAccount, acc)
		return c.Next()
	}
}

// RequireActive stops pending accounts at the door: they can log in and see
// their own status, nothing else.
func (h *Handler) RequireActive() fiber.Handler {
	return func(c *fiber.Ctx) error {
		acc := currentAccount(c)
		if !acc.Active() {
			return h.respondError(c, apperr.New(apperr.KindPermissionDenied, "account is awaiting approval"))
		}
		return c.Next()
	}
}

func (h *Handler) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		acc := currentAccount(c)
		if !acc.Role.IsAdmin() {
			return h.respondError(c, apperr.New(apperr.KindPermissionDenied, "admin role required"))
		}
		return c.Next()
	}
}

// currentAccount reads the account placed in locals by RequireAccount.
func currentAccount(c *fiber.Ctx) model.Account {
	acc, _ := c.Locals(localsAccount).(model.Account)
	return acc
}
