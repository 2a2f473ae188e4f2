package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// StaffTicketsHandler exposes staff-only ticket operations.
type StaffTicketsHandler struct {
	service *service.TicketService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService) *StaffTicketsHandler {
	return &StaffTicketsHandler{service: ticketService}
}

// Claim POST /tickets/:id/claim.
func (h *StaffTicketsHandler) Claim(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Claim(c.UserContext(), c.Params("id"), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Reassign POST /tickets/:id/reassign.
func (h *StaffTicketsHandler) Reassign(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var assignee *domain.Person
	if req.AssigneeID != nil {
		if *req.AssigneeID == "" {
			return apperrors.NewValidationError("assignee_id must be null or a staff id", nil)
		}
		assignee = &domain.Person{ID: *req.AssigneeID}
	}
	ticket, err := h.service.Reassign(c.UserContext(), c.Params("id"), caller, assignee)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// AddHelper POST /tickets/:id/helpers.
func (h *StaffTicketsHandler) AddHelper(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.HelperRequest
	if err := c.BodyParser(&req); err != nil || req.StaffID == "" {
		return apperrors.NewValidationError("staff_id required", nil)
	}
	ticket, err := h.service.AddSupportHelper(c.UserContext(), c.Params("id"), caller, req.StaffID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Watch POST /tickets/:id/watch.
func (h *StaffTicketsHandler) Watch(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Watch(c.UserContext(), c.Params("id"), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Unwatch DELETE /tickets/:id/watch.
func (h *StaffTicketsHandler) Unwatch(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Unwatch(c.UserContext(), c.Params("id"), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Triage POST /tickets/:id/triage runs the assignment engine on demand.
func (h *StaffTicketsHandler) Triage(c *fiber.Ctx) error {
	result, err := h.service.Triage(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAssignmentResponse(result)})
}

// Delete DELETE /tickets/:id.
func (h *StaffTicketsHandler) Delete(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), c.Params("id"), caller); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
