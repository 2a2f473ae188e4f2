package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// ConfirmSolution closes a ticket whose solution the requester accepted.
func (s *TicketService) ConfirmSolution(ctx context.Context, ticketID string, actor domain.Identity, comment string) (*domain.Ticket, error) {
	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.Creator.ID != actor.ID && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("access denied")
	}

	closed := domain.TargetOf(domain.OpConfirm)
	now := s.clock.Now()
	mutation := repository.TicketMutation{
		Status:           &closed,
		SetClosedAt:      true,
		ClosedAt:         &now,
		SetAwaitingSince: true,
		Append: ptr(s.entry(domain.HistoryStatus, actor, strings.TrimSpace(comment), map[string]any{
			"from": string(domain.TicketStatusAwaitingUser),
			"to":   string(closed),
		})),
		At: now,
	}
	guard := repository.TicketGuard{Statuses: domain.SourcesOf(domain.OpConfirm)}

	ticket, err := s.tickets.Update(ctx, ticketID, guard, mutation)
	if err != nil {
		return nil, s.rejected(ctx, "confirm", ticketID, err, func(cur *domain.Ticket) error {
			return apperrors.NewInvalidState("ticket is not awaiting confirmation", map[string]any{
				"ticket_id": ticketID,
				"status":    cur.Status,
			})
		})
	}
	s.metrics.RecordTransition(string(domain.OpConfirm), string(closed))
	s.logger.Info("solution confirmed", zap.String("ticket_id", ticketID), zap.String("actor", actor.ID))

	s.notifyStatus(ctx, ticket, ticket, actor, "Ticket closed", "The solution was confirmed.")
	return VisibleTo(actor, ticket), nil
}

// Reopen returns an awaiting_user or closed ticket to the queue.
func (s *TicketService) Reopen(ctx context.Context, ticketID string, actor domain.Identity, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < s.limits.ReopenReasonMin {
		return nil, apperrors.NewValidationError("reopen reason too short", map[string]any{"min": s.limits.ReopenReasonMin})
	}
	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.Creator.ID != actor.ID && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("access denied")
	}

	open := domain.TargetOf(domain.OpReopen)
	mutation := repository.TicketMutation{
		Status:           &open,
		SetAssignee:      true,
		SetClosedAt:      true,
		SetAwaitingSince: true,
		ClearAutoClose:   true,
		Append: ptr(s.entry(domain.HistoryStatus, actor, reason, map[string]any{
			"to":                string(open),
			"previous_assignee": current.AssigneeID(),
		})),
		At: s.clock.Now(),
	}
	guard := repository.TicketGuard{
		Statuses: domain.SourcesOf(domain.OpReopen),
	}

	ticket, err := s.tickets.Update(ctx, ticketID, guard, mutation)
	if err != nil {
		return nil, s.rejected(ctx, "reopen", ticketID, err, func(cur *domain.Ticket) error {
			return apperrors.NewInvalidState("ticket cannot be reopened in its current status", map[string]any{
				"ticket_id": ticketID,
				"status":    cur.Status,
			})
		})
	}
	s.metrics.RecordTransition(string(domain.OpReopen), string(open))
	s.logger.Info("ticket reopened", zap.String("ticket_id", ticketID), zap.String("actor", actor.ID))

	// The owner was cleared by the update, so fan out to the pre-update set.
	s.notifyStatus(ctx, ticket, current, actor, "Ticket reopened", reason)
	s.notifyQueue(ctx, ticket)
	s.scheduleTriage(ctx, ticket.ID)
	return VisibleTo(actor, ticket), nil
}

// AutoCloseStale closes tickets that have waited on the requester longer
// than threshold. Concurrent or repeated sweeps never close a ticket twice.
func (s *TicketService) AutoCloseStale(ctx context.Context, threshold time.Duration, batchSize int) (int, error) {
	if threshold <= 0 {
		return 0, apperrors.NewValidationError("threshold must be positive", nil)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	now := s.clock.Now()
	cutoff := now.Add(-threshold)
	days := int(threshold.Hours() / 24)
	reason := fmt.Sprintf("no response from requester within %d days", days)

	closedCount := 0
	for {
		stale, err := s.tickets.ListStaleAwaiting(ctx, cutoff, batchSize)
		if err != nil {
			return closedCount, apperrors.MapError(err)
		}
		progressed := false
		for _, candidate := range stale {
			ticket, err := s.autoClose(ctx, candidate.ID, cutoff, reason)
			switch {
			case err == nil:
				closedCount++
				progressed = true
				s.notifyStatus(ctx, ticket, ticket, domain.SystemActor, "Ticket closed automatically", reason)
			case errors.Is(err, repository.ErrGuardRejected), errors.Is(err, repository.ErrNotFound):
				// Another sweep or a user action got there first.
				progressed = true
			default:
				s.logger.Warn("auto-close failed", zap.String("ticket_id", candidate.ID), zap.Error(err))
			}
		}
		if len(stale) < batchSize || !progressed {
			break
		}
	}

	s.metrics.RecordAutoClose(closedCount)
	if closedCount > 0 {
		s.logger.Info("stale tickets auto-closed", zap.Int("count", closedCount), zap.Time("cutoff", cutoff))
	}
	return closedCount, nil
}

func (s *TicketService) autoClose(ctx context.Context, ticketID string, cutoff time.Time, reason string) (*domain.Ticket, error) {
	closed := domain.TargetOf(domain.OpAutoClose)
	now := s.clock.Now()
	guard := repository.TicketGuard{
		Statuses:       domain.SourcesOf(domain.OpAutoClose),
		AwaitingBefore: &cutoff,
	}
	mutation := repository.TicketMutation{
		Status:           &closed,
		SetClosedAt:      true,
		ClosedAt:         &now,
		SetAwaitingSince: true,
		AutoCloseReason:  &reason,
		Append: ptr(s.entry(domain.HistoryStatus, domain.SystemActor, reason, map[string]any{
			"from":        string(domain.TicketStatusAwaitingUser),
			"to":          string(closed),
			"auto_closed": true,
		})),
		At: now,
	}
	return s.tickets.Update(ctx, ticketID, guard, mutation)
}
