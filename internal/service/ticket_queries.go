package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketChanges is the pull-gateway answer for one ticket.
type TicketChanges struct {
	Cursor  time.Time             `json:"cursor"`
	Changed bool                  `json:"changed"`
	Ticket  *domain.Ticket        `json:"ticket,omitempty"`
	History []domain.HistoryEntry `json:"history"`
}

// Dashboard is the coarse KPI view polled by staff and requesters. Updated
// is a page of tickets in (updated_at, id) order; Cursor and CursorID are
// the position to poll from next.
type Dashboard struct {
	Cursor         time.Time                     `json:"cursor"`
	CursorID       string                        `json:"cursor_id,omitempty"`
	HasMore        bool                          `json:"has_more"`
	ByStatus       map[domain.TicketStatus]int64 `json:"by_status,omitempty"`
	OpenUnassigned int64                         `json:"open_unassigned"`
	Updated        []domain.Ticket               `json:"updated"`
}

// Next is the position to poll from after this page.
func (d Dashboard) Next() *Position {
	return &Position{At: d.Cursor, ID: d.CursorID}
}

const (
	defaultDashboardItems = 50
	maxDashboardItems     = 200
)

// ChangesSince returns the ticket if it changed after since along with the
// history entries appended after it. The cursor is the ticket's own
// updated_at, which stores keep in commit order.
func (s *TicketService) ChangesSince(ctx context.Context, viewer domain.Identity, ticketID string, since *time.Time) (TicketChanges, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return TicketChanges{}, err
	}
	if !canView(viewer, ticket) {
		return TicketChanges{}, apperrors.NewForbidden("access denied")
	}

	out := TicketChanges{Cursor: ticket.UpdatedAt, History: []domain.HistoryEntry{}}
	if since != nil && !ticket.UpdatedAt.After(*since) {
		out.Cursor = *since
		return out, nil
	}
	visible := VisibleTo(viewer, ticket)
	out.Changed = true
	out.Ticket = visible
	for _, e := range visible.History {
		if since == nil || e.At.After(*since) {
			out.History = append(out.History, e)
		}
	}
	return out, nil
}

// DashboardSince returns KPI counts and a page of tickets updated after
// from. Staff see every ticket; requesters see only their own and no
// global counts.
func (s *TicketService) DashboardSince(ctx context.Context, viewer domain.Identity, from *Position, limit int) (Dashboard, error) {
	if limit <= 0 {
		limit = defaultDashboardItems
	}
	if limit > maxDashboardItems {
		limit = maxDashboardItems
	}
	readAt := s.clock.Now()
	var out Dashboard

	filter := repository.TicketFilter{Limit: limit}
	if from != nil {
		filter.UpdatedAfter = &from.At
		filter.AfterID = from.ID
	}
	if viewer.Role.IsStaff() {
		counts, err := s.tickets.CountByStatus(ctx)
		if err != nil {
			return Dashboard{}, apperrors.MapError(err)
		}
		out.ByStatus = counts.ByStatus
		out.OpenUnassigned = counts.OpenUnassigned
	} else {
		id := viewer.ID
		filter.CreatorID = &id
	}

	updated, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return Dashboard{}, apperrors.MapError(err)
	}
	out.Updated = make([]domain.Ticket, 0, len(updated))
	for i := range updated {
		out.Updated = append(out.Updated, *VisibleTo(viewer, &updated[i]))
	}

	var last *Position
	if n := len(updated); n > 0 {
		last = &Position{At: updated[n-1].UpdatedAt, ID: updated[n-1].ID}
	}
	out.HasMore = len(updated) == limit
	next := nextPosition(from, last, out.HasMore, readAt, s.settle)
	out.Cursor, out.CursorID = next.At, next.ID
	return out, nil
}
