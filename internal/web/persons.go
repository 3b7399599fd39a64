package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/model"
	"giapha/internal/person"
)

func (h *Handler) ListPersons(c *fiber.Ctx) error {
	persons, err := h.persons.List(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(persons)
}

func (h *Handler) GetPerson(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed person id"))
	}

	view, err := h.persons.Get(c.UserContext(), currentAccount(c), personID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(view)
}

func (h *Handler) PersonKin(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed person id"))
	}

	kin, err := h.persons.Kin(c.UserContext(), personID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(kin)
}

// CanEditPerson answers the advisory question the edit form asks before
// deciding between a direct save and a proposal.
func (h *Handler) CanEditPerson(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed person id"))
	}

	allowed, err := h.persons.CanEdit(c.UserContext(), currentAccount(c), personID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"canEdit": allowed})
}

func (h *Handler) EditPerson(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed person id"))
	}

	var fields map[string]any
	if err := c.BodyParser(&fields); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}

	if err := h.persons.DirectEdit(c.UserContext(), currentAccount(c), personID, fields); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type createPersonRequest struct {
	Name           string       `json:"name" validate:"required,min=1,max=200"`
	Nickname       string       `json:"nickname" validate:"max=100"`
	Gender         model.Gender `json:"gender" validate:"required"`
	BirthDate      string       `json:"birthDate" validate:"flexdate"`
	DeathDate      string       `json:"deathDate" validate:"flexdate"`
	LunarBirthDate string       `json:"lunarBirthDate"`
	LunarDeathDate string       `json:"lunarDeathDate"`
	IsDeceased     bool         `json:"isDeceased"`
	FatherID       uuid.UUID    `json:"fatherId"`
	MotherID       uuid.UUID    `json:"motherId"`
	Biography      string       `json:"biography"`
	CurrentAddress string       `json:"currentAddress"`
}

func (h *Handler) CreatePerson(c *fiber.Ctx) error {
	var req createPersonRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}
	if err := h.validator.Validate(req); err != nil {
		return h.respondError(c, apperr.Wrap(apperr.KindInvalidArgument, err, "invalid person"))
	}

	personID, err := h.persons.Create(c.UserContext(), currentAccount(c), person.CreateParams{
		Name:           req.Name,
		Nickname:       req.Nickname,
		Gender:         req.Gender,
		BirthDate:      req.BirthDate,
		DeathDate:      req.DeathDate,
		LunarBirthDate: req.LunarBirthDate,
		LunarDeathDate: req.LunarDeathDate,
		IsDeceased:     req.IsDeceased,
		FatherID:       req.FatherID,
		MotherID:       req.MotherID,
		Biography:      req.Biography,
		CurrentAddress: req.CurrentAddress,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": personID})
}

func (h *Handler) DeletePerson(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed person id"))
	}

	if err := h.persons.Delete(c.UserContext(), currentAccount(c), personID); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UploadAvatar stores a portrait and writes its public path onto the person
// through the same edit path as any other field, so the edit rules apply.
// The stored value is the stable /media path, never a signed URL; signed
// URLs expire and are minted per request by the media route.
func (h *Handler) UploadAvatar(c *fiber.Ctx) error {
	personID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed person id"))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "missing file upload"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.respondError(c, apperr.Wrap(apperr.KindInternal, err, "opening upload"))
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	key, err := h.media.Store(c.UserContext(), personID, fileHeader.Filename, file, contentType)
	if err != nil {
		return h.respondError(c, err)
	}

	url := mediaPath(key)
	if err := h.persons.DirectEdit(c.UserContext(), currentAccount(c), personID, map[string]any{
		"profilePictureUrl": url,
	}); err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{"key": key, "url": url})
}
