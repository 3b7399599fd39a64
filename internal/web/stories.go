package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/story"
)

func (h *Handler) ListStories(c *fiber.Ctx) error {
	stories, err := h.stories.List(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(stories)
}

type publishStoryRequest struct {
	Title         string `json:"title" validate:"required,min=1,max=300"`
	Body          string `json:"body" validate:"required"`
	CoverImageURL string `json:"coverImageUrl"`
}

func (h *Handler) PublishStory(c *fiber.Ctx) error {
	var req publishStoryRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}
	if err := h.validator.Validate(req); err != nil {
		return h.respondError(c, apperr.Wrap(apperr.KindInvalidArgument, err, "invalid story"))
	}

	storyID, err := h.stories.Publish(c.UserContext(), currentAccount(c), story.PublishParams{
		Title:         req.Title,
		Body:          req.Body,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": storyID})
}

func (h *Handler) DeleteStory(c *fiber.Ctx) error {
	storyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed story id"))
	}

	if err := h.stories.Delete(c.UserContext(), currentAccount(c), storyID); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
