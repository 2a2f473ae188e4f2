package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// NotificationStore keeps notifications in insertion order.
type NotificationStore struct {
	mu    sync.Mutex
	items []*domain.Notification
}

// NewNotificationStore creates an empty store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

var _ repository.NotificationRepository = (*NotificationStore)(nil)

func (s *NotificationStore) Insert(_ context.Context, n *domain.Notification) error {
	cp := *n
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, &cp)
	return nil
}

func (s *NotificationStore) ListForRecipient(_ context.Context, viewer domain.Recipient, filter repository.NotificationFilter) ([]domain.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	var result []domain.Notification
	for _, n := range s.items {
		if !viewer.Matches(n.Recipient) {
			continue
		}
		if filter.CreatedAfter != nil && !repository.PastKeyset(n.CreatedAt, n.ID, *filter.CreatedAfter, filter.AfterID) {
			continue
		}
		if filter.UnreadOnly && !n.Unread() {
			continue
		}
		result = append(result, *n)
	}
	s.mu.Unlock()
	forward := filter.CreatedAfter != nil
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt) != forward
		}
		return (a.ID > b.ID) != forward
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *NotificationStore) CountUnread(_ context.Context, viewer domain.Recipient) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.items {
		if viewer.Matches(n.Recipient) && n.Unread() {
			count++
		}
	}
	return count, nil
}

func (s *NotificationStore) MarkRead(_ context.Context, id string, viewer domain.Recipient, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.ID != id || !viewer.Matches(n.Recipient) {
			continue
		}
		if !n.Unread() {
			return 0, nil
		}
		readAt := at
		n.ReadAt = &readAt
		return 1, nil
	}
	return 0, repository.ErrNotFound
}

func (s *NotificationStore) MarkAllRead(_ context.Context, viewer domain.Recipient, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var modified int64
	for _, n := range s.items {
		if viewer.Matches(n.Recipient) && n.Unread() {
			readAt := at
			n.ReadAt = &readAt
			modified++
		}
	}
	return modified, nil
}

func (s *NotificationStore) DeleteByTicket(_ context.Context, ticketID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	var removed int64
	for _, n := range s.items {
		if n.TicketID != nil && *n.TicketID == ticketID {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	s.items = kept
	return removed, nil
}
