package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/model"
	"giapha/internal/proposal"
)

type submitProposalRequest struct {
	Note         string              `json:"proposerNote" validate:"max=2000"`
	Kind         model.ProposalKind  `json:"kind" validate:"required"`
	FieldChange  *model.FieldChange  `json:"fieldChange"`
	AddRelative  *model.AddRelative  `json:"addRelative"`
	LinkRelative *model.LinkRelative `json:"linkRelative"`
}

func (h *Handler) SubmitProposal(c *fiber.Ctx) error {
	var req submitProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}
	if err := h.validator.Validate(req); err != nil {
		return h.respondError(c, apperr.Wrap(apperr.KindInvalidArgument, err, "invalid proposal"))
	}

	prop, err := h.proposals.Submit(c.UserContext(), proposal.SubmitParams{
		ProposerID:   currentAccount(c).ID,
		Note:         req.Note,
		Kind:         req.Kind,
		FieldChange:  req.FieldChange,
		AddRelative:  req.AddRelative,
		LinkRelative: req.LinkRelative,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(prop)
}

func (h *Handler) GetProposal(c *fiber.Ctx) error {
	proposalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed proposal id"))
	}

	prop, err := h.proposals.Get(c.UserContext(), currentAccount(c), proposalID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(prop)
}

// ListProposals returns pending proposals by default; ?all=true widens to
// the full history.
func (h *Handler) ListProposals(c *fiber.Ctx) error {
	var (
		props []model.Proposal
		err   error
	)
	if c.QueryBool("all") {
		props, err = h.proposals.List(c.UserContext())
	} else {
		props, err = h.proposals.Pending(c.UserContext())
	}
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(props)
}

func (h *Handler) ApproveProposal(c *fiber.Ctx) error {
	proposalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed proposal id"))
	}

	if err := h.proposals.Approve(c.UserContext(), proposalID, currentAccount(c).ID); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type rejectProposalRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func (h *Handler) RejectProposal(c *fiber.Ctx) error {
	proposalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed proposal id"))
	}

	var req rejectProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respondError(c, apperr.New(apperr.KindInvalidArgument, "malformed request body"))
	}

	if err := h.proposals.Reject(c.UserContext(), proposalID, currentAccount(c).ID, req.Reason); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
