package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Fan-out is best effort: failures are logged and never undo the ticket
// mutation that triggered them.

func ticketURL(t *domain.Ticket) string {
	return "/tickets/" + t.ID
}

func ticketLabel(t *domain.Ticket) string {
	return fmt.Sprintf("#%d %s", t.Number, t.Title)
}

// staffWatchers lists the assignee, helpers and subscribers of t.
func staffWatchers(t *domain.Ticket) []domain.Person {
	people := make([]domain.Person, 0, 1+len(t.SupportHelpers)+len(t.NotificationSubscribers))
	if t.Assignee != nil {
		people = append(people, *t.Assignee)
	}
	for _, h := range t.SupportHelpers {
		people = append(people, h.Person)
	}
	people = append(people, t.NotificationSubscribers...)
	return people
}

func (s *TicketService) notifyQueue(ctx context.Context, t *domain.Ticket) {
	s.deliver(ctx, t, domain.Person{}, domain.NotificationNewTicketInQueue,
		"New ticket in queue", ticketLabel(t), []domain.Recipient{domain.AllAdmins})
}

func (s *TicketService) notifyAssigned(ctx context.Context, t *domain.Ticket, assignee, actor domain.Person) {
	s.deliver(ctx, t, actor, domain.NotificationAssigned,
		"Ticket assigned to you", ticketLabel(t), []domain.Recipient{domain.RecipientFor(assignee)})
	s.deliver(ctx, t, actor, domain.NotificationStatusChanged,
		"Your ticket is being handled", fmt.Sprintf("%s is now working on %s", assignee.Name, ticketLabel(t)),
		[]domain.Recipient{domain.RecipientFor(t.Creator)})
}

func (s *TicketService) notifyInteraction(ctx context.Context, t *domain.Ticket, author domain.Person, kind InteractionKind) {
	switch kind {
	case InteractionSolution:
		s.deliver(ctx, t, author, domain.NotificationNewSolution,
			"A solution was proposed", ticketLabel(t), []domain.Recipient{domain.RecipientFor(t.Creator)})
	case InteractionInternalNote:
		s.deliver(ctx, t, author, domain.NotificationNewMessage,
			"New internal note", ticketLabel(t), recipientsFor(staffWatchers(t)))
	case InteractionMessage:
		if author.ID == t.Creator.ID {
			s.deliver(ctx, t, author, domain.NotificationNewMessage,
				"New message from requester", ticketLabel(t), recipientsFor(staffWatchers(t)))
			return
		}
		s.deliver(ctx, t, author, domain.NotificationNewMessage,
			"New reply on your ticket", ticketLabel(t), []domain.Recipient{domain.RecipientFor(t.Creator)})
	}
}

// notifyStatus tells everyone involved in audience about a status change of t.
func (s *TicketService) notifyStatus(ctx context.Context, t, audience *domain.Ticket, actor domain.Person, title, message string) {
	recipients := recipientsFor(staffWatchers(audience))
	recipients = append(recipients, domain.RecipientFor(audience.Creator))
	s.deliver(ctx, t, actor, domain.NotificationStatusChanged, title, message, recipients)
}

// deliver writes one notification per distinct recipient, skipping actor.
func (s *TicketService) deliver(ctx context.Context, t *domain.Ticket, actor domain.Person, kind domain.NotificationType, title, message string, recipients []domain.Recipient) {
	if s.notifications == nil {
		return
	}
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		if r.ID == "" || (!actor.IsZero() && r.ID == actor.ID) {
			continue
		}
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}

		_, err := s.notifications.Notify(ctx, NotifyInput{
			Recipient: r,
			Type:      kind,
			TicketID:  t.ID,
			Title:     title,
			Message:   message,
			URL:       ticketURL(t),
			Meta:      map[string]any{"number": t.Number, "status": string(t.Status)},
		})
		if err != nil {
			s.logger.Warn("notification failed",
				zap.String("ticket_id", t.ID),
				zap.String("recipient", r.Key()),
				zap.String("type", string(kind)),
				zap.Error(err))
		}
	}
}

func recipientsFor(people []domain.Person) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(people))
	for _, p := range people {
		out = append(out, domain.RecipientFor(p))
	}
	return out
}
