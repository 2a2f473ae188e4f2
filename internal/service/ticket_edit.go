package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/catalog"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// EditTicketInput carries the fields to change. Nil means unchanged.
type EditTicketInput struct {
	Title       *string
	Description *string
	Category    *string
	Priority    *domain.TicketPriority
}

// Edit changes descriptive fields of a non-closed ticket.
func (s *TicketService) Edit(ctx context.Context, ticketID string, actor domain.Identity, in EditTicketInput) (*domain.Ticket, error) {
	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.Creator.ID != actor.ID && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("access denied")
	}

	mutation := repository.TicketMutation{At: s.clock.Now()}
	var fields []string
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := s.validateText("title", title, s.limits.TitleMin, s.limits.TitleMax); err != nil {
			return nil, err
		}
		mutation.Title = &title
		fields = append(fields, "title")
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if err := s.validateText("description", description, s.limits.DescriptionMin, s.limits.DescriptionMax); err != nil {
			return nil, err
		}
		mutation.Description = &description
		fields = append(fields, "description")
	}
	if in.Category != nil {
		if err := s.checkActive(ctx, catalog.KindCategory, *in.Category); err != nil {
			return nil, err
		}
		mutation.Category = in.Category
		fields = append(fields, "category")
	}
	if in.Priority != nil {
		if err := s.checkActive(ctx, catalog.KindPriority, string(*in.Priority)); err != nil {
			return nil, err
		}
		mutation.Priority = in.Priority
		fields = append(fields, "priority")
	}
	if len(fields) == 0 {
		return nil, apperrors.NewValidationError("nothing to change", nil)
	}
	mutation.Append = ptr(s.entry(domain.HistoryEdit, actor, "", map[string]any{"fields": fields}))

	ticket, err := s.tickets.Update(ctx, ticketID, repository.TicketGuard{Statuses: activeStatuses}, mutation)
	if err != nil {
		return nil, s.rejected(ctx, "edit", ticketID, err, func(cur *domain.Ticket) error {
			return apperrors.NewInvalidState("closed tickets cannot be edited", map[string]any{"ticket_id": ticketID})
		})
	}
	s.logger.Debug("ticket edited", zap.String("ticket_id", ticketID), zap.Strings("fields", fields))
	return VisibleTo(actor, ticket), nil
}

// AddSupportHelper grants a technician secondary access to a ticket.
func (s *TicketService) AddSupportHelper(ctx context.Context, ticketID string, actor domain.Identity, helperID string) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may add helpers")
	}
	helper, err := s.eligibleStaff(ctx, helperID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	guard := repository.TicketGuard{Statuses: activeStatuses, HelperAbsent: helper.ID}
	mutation := repository.TicketMutation{
		AddHelper: &domain.SupportHelper{Person: *helper, JoinedAt: now},
		Append:    ptr(s.entry(domain.HistoryEdit, actor, "", map[string]any{"helper_added": helper.ID})),
		At:        now,
	}

	ticket, err := s.tickets.Update(ctx, ticketID, guard, mutation)
	if err != nil {
		return nil, s.rejected(ctx, "add_helper", ticketID, err, func(cur *domain.Ticket) error {
			if cur.Status == domain.TicketStatusClosed {
				return apperrors.NewInvalidState("closed tickets cannot gain helpers", map[string]any{"ticket_id": ticketID})
			}
			return apperrors.NewConflict("staff member already works this ticket", map[string]any{
				"ticket_id": ticketID,
				"staff_id":  helper.ID,
			})
		})
	}
	s.logger.Debug("support helper added", zap.String("ticket_id", ticketID), zap.String("helper", helper.ID))
	return ticket, nil
}

// Watch subscribes a staff member to a ticket's notifications.
func (s *TicketService) Watch(ctx context.Context, ticketID string, staff domain.Identity) (*domain.Ticket, error) {
	if !staff.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may watch tickets")
	}
	person := staff
	return s.updateSubscribers(ctx, "watch", ticketID, repository.TicketMutation{AddSubscriber: &person})
}

// Unwatch removes a staff member from a ticket's notification subscribers.
func (s *TicketService) Unwatch(ctx context.Context, ticketID string, staff domain.Identity) (*domain.Ticket, error) {
	if !staff.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may watch tickets")
	}
	return s.updateSubscribers(ctx, "unwatch", ticketID, repository.TicketMutation{RemoveSubscriber: staff.ID})
}

// updateSubscribers changes the subscriber set without touching history or
// updatedAt; subscriptions are not visible ticket state.
func (s *TicketService) updateSubscribers(ctx context.Context, operation, ticketID string, mutation repository.TicketMutation) (*domain.Ticket, error) {
	ticket, err := s.tickets.Update(ctx, ticketID, repository.TicketGuard{}, mutation)
	if err != nil {
		return nil, s.rejected(ctx, operation, ticketID, err, func(*domain.Ticket) error {
			return apperrors.NewConflict("subscription update rejected", map[string]any{"ticket_id": ticketID})
		})
	}
	return ticket, nil
}
