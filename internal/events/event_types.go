package events

import "time"

// EventType enumerates why a recipient key was published.
type EventType string

const (
	EventNotificationCreated EventType = "notification_created"
	EventNotificationsRead   EventType = "notifications_read"
)

// Event is the bus message. Key is the recipient key "{kind}:{id}".
// Receivers re-query persisted state, so the payload stays thin.
type Event struct {
	Key       string    `json:"key"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
