package repository

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketGuard is the predicate a store evaluates against the current document
// at write time. Every non-zero field must hold for the update to apply.
type TicketGuard struct {
	// Statuses restricts the current status. Empty means any.
	Statuses []domain.TicketStatus
	// AssigneeNullOr requires the ticket to be unassigned or held by this id.
	AssigneeNullOr string
	// AssigneeIs requires the current assignee to equal the value exactly;
	// a pointer to "" requires the ticket to be unassigned.
	AssigneeIs *string
	// HelperAbsent requires that id to be neither a helper nor the assignee.
	HelperAbsent string
	// AwaitingBefore requires awaiting_user_since to be older than this instant.
	AwaitingBefore *time.Time
}

// Matches evaluates the guard against t.
func (g TicketGuard) Matches(t *domain.Ticket) bool {
	if len(g.Statuses) > 0 {
		found := false
		for _, s := range g.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if g.AssigneeNullOr != "" && t.Assignee != nil && t.Assignee.ID != g.AssigneeNullOr {
		return false
	}
	if g.AssigneeIs != nil && t.AssigneeID() != *g.AssigneeIs {
		return false
	}
	if g.HelperAbsent != "" && (t.HasHelper(g.HelperAbsent) || t.AssigneeID() == g.HelperAbsent) {
		return false
	}
	if g.AwaitingBefore != nil {
		if t.AwaitingUserSince == nil || !t.AwaitingUserSince.Before(*g.AwaitingBefore) {
			return false
		}
	}
	return true
}

// SolutionUpdate stamps the accepted answer on a ticket.
type SolutionUpdate struct {
	Text string
	At   time.Time
	By   domain.Person
}

// TicketMutation is the change applied when a guard matches. A mutation that
// changes visible state carries exactly one history entry in Append.
type TicketMutation struct {
	Status *domain.TicketStatus

	SetAssignee bool
	Assignee    *domain.Person

	Title       *string
	Description *string
	Category    *string
	Priority    *domain.TicketPriority

	Solution *SolutionUpdate

	SetAwaitingSince bool
	AwaitingSince    *time.Time

	SetClosedAt bool
	ClosedAt    *time.Time

	// AutoCloseReason marks the ticket auto-closed. ClearAutoClose resets it.
	AutoCloseReason *string
	ClearAutoClose  bool

	AddHelper        *domain.SupportHelper
	AddSubscriber    *domain.Person
	RemoveSubscriber string

	Append *domain.HistoryEntry
	// At becomes updated_at and the appended entry's time when Append is set.
	// Stores move it past the current updated_at so stamps on one ticket
	// follow commit order.
	At time.Time
}

// StampAfter returns the time a mutation commits with when the document was
// last updated at previous.
func StampAfter(at, previous time.Time) time.Time {
	if at.After(previous) {
		return at
	}
	return previous.Add(time.Microsecond)
}

// ApplyTo mutates t in place.
func (m TicketMutation) ApplyTo(t *domain.Ticket) {
	if m.Status != nil {
		t.Status = *m.Status
	}
	if m.SetAssignee {
		if m.Assignee == nil {
			t.Assignee = nil
		} else {
			a := *m.Assignee
			t.Assignee = &a
		}
	}
	if m.Title != nil {
		t.Title = *m.Title
	}
	if m.Description != nil {
		t.Description = *m.Description
	}
	if m.Category != nil {
		t.Category = *m.Category
	}
	if m.Priority != nil {
		t.Priority = *m.Priority
	}
	if m.Solution != nil {
		at := m.Solution.At
		by := m.Solution.By
		t.Solution = m.Solution.Text
		t.SolvedAt = &at
		t.SolvedBy = &by
	}
	if m.SetAwaitingSince {
		t.AwaitingUserSince = copyTime(m.AwaitingSince)
	}
	if m.SetClosedAt {
		t.ClosedAt = copyTime(m.ClosedAt)
	}
	if m.AutoCloseReason != nil {
		t.AutoClosed = true
		t.AutoCloseReason = *m.AutoCloseReason
	}
	if m.ClearAutoClose {
		t.AutoClosed = false
		t.AutoCloseReason = ""
	}
	if m.AddHelper != nil && !t.HasHelper(m.AddHelper.ID) {
		t.SupportHelpers = append(t.SupportHelpers, *m.AddHelper)
	}
	if m.AddSubscriber != nil && !t.HasSubscriber(m.AddSubscriber.ID) {
		t.NotificationSubscribers = append(t.NotificationSubscribers, *m.AddSubscriber)
	}
	if m.RemoveSubscriber != "" {
		kept := t.NotificationSubscribers[:0]
		for _, s := range t.NotificationSubscribers {
			if s.ID != m.RemoveSubscriber {
				kept = append(kept, s)
			}
		}
		t.NotificationSubscribers = kept
	}
	if m.Append != nil {
		at := StampAfter(m.At, t.UpdatedAt)
		entry := m.Append.Clone()
		entry.At = at
		t.History = append(t.History, entry)
		t.UpdatedAt = at
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
