package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

// NotificationsHandler is the polling side of notification delivery.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notifications}
}

// Poll GET /notifications?since=&after=&limit=.
func (h *NotificationsHandler) Poll(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	from, err := parsePosition(c)
	if err != nil {
		return err
	}
	poll, err := h.service.Poll(c.UserContext(), domain.RecipientFor(caller), from, parseInt(c.Query("limit"), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": poll})
}

// Snapshot GET /notifications/snapshot returns what a push session would send.
func (h *NotificationsHandler) Snapshot(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	snapshot, err := h.service.Snapshot(c.UserContext(), domain.RecipientFor(caller))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": snapshot})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	modified, err := h.service.MarkRead(c.UserContext(), c.Params("id"), domain.RecipientFor(caller))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkReadResponse{Modified: modified}})
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	modified, err := h.service.MarkAllRead(c.UserContext(), domain.RecipientFor(caller))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkReadResponse{Modified: modified}})
}
