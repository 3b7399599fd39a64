package web

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"giapha/internal/apperr"
)

// statusFor maps the error taxonomy onto HTTP. Anything without a kind is an
// internal failure and must not leak its detail to the client.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return fiber.StatusBadRequest
	case apperr.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case apperr.KindPermissionDenied:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindFailedPrecondition:
		return fiber.StatusPreconditionFailed
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	body := fiber.Map{"error": string(kind)}
	var appErr *apperr.Error
	if status != fiber.StatusInternalServerError && errors.As(err, &appErr) {
		body["detail"] = appErr.Detail
	}
	if status == fiber.StatusInternalServerError {
		h.logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
		body["error"] = string(apperr.KindInternal)
	}
	return c.Status(status).JSON(body)
}
