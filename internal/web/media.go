package web

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"giapha/internal/apperr"
)

// mediaPath is the stable public path stored on records. Signed backend URLs
// expire, so records carry the key-derived path and the short-lived link is
// minted on each request.
func mediaPath(key string) string {
	return "/media/" + key
}

// Media redirects a stored media key to a freshly signed backend URL. Only
// mounted for signing backends; local files are served statically under the
// same path.
func (h *Handler) Media(c *fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "missing media key"))
	}

	url, err := h.media.GetURL(c.UserContext(), key, 15*time.Minute)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Redirect(url, fiber.StatusFound)
}
