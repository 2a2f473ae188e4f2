package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "open"
	TicketStatusInProgress   TicketStatus = "in_progress"
	TicketStatusAwaitingUser TicketStatus = "awaiting_user"
	TicketStatusClosed       TicketStatus = "closed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusAwaitingUser,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusAwaitingUser, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority is a key into the classification catalog.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Urgent reports whether the priority justifies pulling in administrators.
func (p TicketPriority) Urgent() bool {
	return p == TicketPriorityHigh || p == TicketPriorityCritical
}

// SupportHelper is a technician with secondary access to a ticket.
type SupportHelper struct {
	Person
	JoinedAt time.Time `json:"joined_at"`
}

// Ticket is the aggregate for support requests. History is append-only and
// only ever grows through the store's guarded update.
type Ticket struct {
	ID                      string          `json:"id"`
	Number                  int64           `json:"number"`
	Title                   string          `json:"title"`
	Description             string          `json:"description"`
	Category                string          `json:"category"`
	Priority                TicketPriority  `json:"priority"`
	Status                  TicketStatus    `json:"status"`
	Creator                 Person          `json:"creator"`
	Assignee                *Person         `json:"assignee,omitempty"`
	SupportHelpers          []SupportHelper `json:"support_helpers"`
	NotificationSubscribers []Person        `json:"notification_subscribers"`
	History                 []HistoryEntry  `json:"history"`
	Solution                string          `json:"solution,omitempty"`
	SolvedAt                *time.Time      `json:"solved_at,omitempty"`
	SolvedBy                *Person         `json:"solved_by,omitempty"`
	AwaitingUserSince       *time.Time      `json:"awaiting_user_since,omitempty"`
	ClosedAt                *time.Time      `json:"closed_at,omitempty"`
	AutoClosed              bool            `json:"auto_closed"`
	AutoCloseReason         string          `json:"auto_close_reason,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// AssigneeID returns the assignee id or empty when unassigned.
func (t *Ticket) AssigneeID() string {
	if t.Assignee == nil {
		return ""
	}
	return t.Assignee.ID
}

// HasHelper reports whether staffID already helps on the ticket.
func (t *Ticket) HasHelper(staffID string) bool {
	for _, h := range t.SupportHelpers {
		if h.ID == staffID {
			return true
		}
	}
	return false
}

// HasSubscriber reports whether staffID opted into updates.
func (t *Ticket) HasSubscriber(staffID string) bool {
	for _, s := range t.NotificationSubscribers {
		if s.ID == staffID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never alias store-owned slices.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	if t.Assignee != nil {
		a := *t.Assignee
		out.Assignee = &a
	}
	if t.SolvedBy != nil {
		s := *t.SolvedBy
		out.SolvedBy = &s
	}
	out.SolvedAt = cloneTime(t.SolvedAt)
	out.AwaitingUserSince = cloneTime(t.AwaitingUserSince)
	out.ClosedAt = cloneTime(t.ClosedAt)
	out.SupportHelpers = append([]SupportHelper(nil), t.SupportHelpers...)
	out.NotificationSubscribers = append([]Person(nil), t.NotificationSubscribers...)
	out.History = make([]HistoryEntry, len(t.History))
	for i := range t.History {
		out.History[i] = t.History[i].Clone()
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
