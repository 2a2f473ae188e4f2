package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketsHandler serves the ticket endpoints shared by requesters and staff.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Create(c.UserContext(), caller, req.ToCreateInput())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticket})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// EditTicket PATCH /tickets/:id.
func (h *TicketsHandler) EditTicket(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.EditTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Edit(c.UserContext(), c.Params("id"), caller, req.ToEditInput())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// AddInteraction POST /tickets/:id/interactions.
func (h *TicketsHandler) AddInteraction(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.InteractionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.AddInteraction(c.UserContext(), c.Params("id"), caller, req.ToInteractionInput())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticket})
}

// ConfirmSolution POST /tickets/:id/confirm.
func (h *TicketsHandler) ConfirmSolution(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ConfirmSolutionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.service.ConfirmSolution(c.UserContext(), c.Params("id"), caller, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ReopenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Reopen(c.UserContext(), c.Params("id"), caller, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Changes GET /tickets/:id/changes?since=.
func (h *TicketsHandler) Changes(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	since, err := parseSince(c.Query("since"))
	if err != nil {
		return err
	}
	changes, err := h.service.ChangesSince(c.UserContext(), caller, c.Params("id"), since)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changes})
}

// Dashboard GET /tickets/dashboard?since=&after=&limit=.
func (h *TicketsHandler) Dashboard(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	from, err := parsePosition(c)
	if err != nil {
		return err
	}
	dashboard, err := h.service.DashboardSince(c.UserContext(), caller, from, parseInt(c.Query("limit"), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dashboard})
}

func callerFrom(c *fiber.Ctx) (domain.Identity, error) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok || identity.IsZero() {
		return domain.Identity{}, apperrors.NewUnauthorized("authentication required")
	}
	return identity, nil
}

// parseSince accepts an RFC3339 cursor. Empty means "from the beginning".
func parseSince(val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return nil, apperrors.NewValidationError("since must be an RFC3339 timestamp", map[string]any{"since": val})
	}
	return &t, nil
}

// parsePosition reads a feed position from since and the optional after id.
func parsePosition(c *fiber.Ctx) (*service.Position, error) {
	since, err := parseSince(c.Query("since"))
	if err != nil {
		return nil, err
	}
	after := c.Query("after")
	if since == nil {
		if after != "" {
			return nil, apperrors.NewValidationError("after requires since", map[string]any{"after": after})
		}
		return nil, nil
	}
	return &service.Position{At: *since, ID: after}, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
