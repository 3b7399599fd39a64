package web

import (
	"github.com/gofiber/fiber/v2"
)

// PublicTree serves the anonymous view: just the nested structure. Contact
// data never appears here because it is not part of the Person record.
func (h *Handler) PublicTree(c *fiber.Ctx) error {
	result, err := h.persons.Tree(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"root": result.Root, "roots": result.Roots})
}

// Tree serves the member view, including the flat generation-ordered list
// the person index renders from.
func (h *Handler) Tree(c *fiber.Ctx) error {
	result, err := h.persons.Tree(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(result)
}
