package domain

import (
	"strings"
	"time"
)

// RecipientKind enumerates who a notification can be addressed to.
type RecipientKind string

const (
	RecipientRequester  RecipientKind = "requester"
	RecipientTechnician RecipientKind = "technician"
	RecipientAdmin      RecipientKind = "admin"
)

// Valid reports whether k is a known recipient kind.
func (k RecipientKind) Valid() bool {
	switch k {
	case RecipientRequester, RecipientTechnician, RecipientAdmin:
		return true
	}
	return false
}

// WildcardID addresses every recipient of a kind. Only admins use it.
const WildcardID = "*"

// Recipient identifies who a notification is for.
type Recipient struct {
	Kind RecipientKind `json:"kind"`
	ID   string        `json:"id"`
}

// AllAdmins is the wildcard recipient matched by every admin.
var AllAdmins = Recipient{Kind: RecipientAdmin, ID: WildcardID}

// Key is the bus routing key "{kind}:{id}".
func (r Recipient) Key() string {
	return string(r.Kind) + ":" + r.ID
}

// IsWildcard reports whether r addresses a whole kind.
func (r Recipient) IsWildcard() bool {
	return r.ID == WildcardID
}

// Matches reports whether a notification addressed to target is visible to r.
func (r Recipient) Matches(target Recipient) bool {
	if r.Kind != target.Kind {
		return false
	}
	return target.ID == r.ID || (target.Kind == RecipientAdmin && target.IsWildcard())
}

// ParseRecipientKey is the inverse of Key.
func ParseRecipientKey(key string) (Recipient, bool) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" || !RecipientKind(kind).Valid() {
		return Recipient{}, false
	}
	return Recipient{Kind: RecipientKind(kind), ID: id}, true
}

// RecipientFor maps an identity onto its notification address.
func RecipientFor(p Person) Recipient {
	switch p.Role {
	case RoleAdmin:
		return Recipient{Kind: RecipientAdmin, ID: p.ID}
	case RoleTechnician:
		return Recipient{Kind: RecipientTechnician, ID: p.ID}
	default:
		return Recipient{Kind: RecipientRequester, ID: p.ID}
	}
}

// NotificationType is the closed set of notification reasons.
type NotificationType string

const (
	NotificationNewMessage       NotificationType = "new_message"
	NotificationNewSolution      NotificationType = "new_solution"
	NotificationStatusChanged    NotificationType = "status_changed"
	NotificationNewTicketInQueue NotificationType = "new_ticket_in_queue"
	NotificationAssigned         NotificationType = "assigned"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewMessage, NotificationNewSolution, NotificationStatusChanged,
		NotificationNewTicketInQueue, NotificationAssigned:
		return true
	}
	return false
}

// Notification is a per-recipient record. Only ReadAt ever changes.
type Notification struct {
	ID        string           `json:"id"`
	Recipient Recipient        `json:"recipient"`
	TicketID  *string          `json:"ticket_id,omitempty"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	URL       string           `json:"url,omitempty"`
	Meta      map[string]any   `json:"meta,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
}

// Unread reports whether the notification has not been read.
func (n *Notification) Unread() bool {
	return n.ReadAt == nil
}
