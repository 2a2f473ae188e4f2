// Package memstore is an in-memory document store with the same atomic
// guarded-update semantics as the Postgres repositories. It backs tests and
// DSN-less development runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// TicketStore keeps ticket documents keyed by id with a unique number index.
type TicketStore struct {
	mu       sync.Mutex
	tickets  map[string]*domain.Ticket
	byNumber map[int64]string
}

// NewTicketStore creates an empty store.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets:  make(map[string]*domain.Ticket),
		byNumber: make(map[int64]string),
	}
}

var _ repository.TicketRepository = (*TicketStore)(nil)

func (s *TicketStore) Insert(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byNumber[ticket.Number]; exists {
		return fmt.Errorf("%w: %d", repository.ErrDuplicateNumber, ticket.Number)
	}
	if _, exists := s.tickets[ticket.ID]; exists {
		return fmt.Errorf("memstore: duplicate ticket id %s", ticket.ID)
	}
	s.tickets[ticket.ID] = ticket.Clone()
	s.byNumber[ticket.Number] = ticket.ID
	return nil
}

func (s *TicketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ticket.Clone(), nil
}

// Update evaluates the guard and applies the mutation under one lock, which
// is the in-memory equivalent of a single-document conditional write.
func (s *TicketStore) Update(_ context.Context, id string, guard repository.TicketGuard, mutation repository.TicketMutation) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !guard.Matches(ticket) {
		return nil, repository.ErrGuardRejected
	}
	mutation.ApplyTo(ticket)
	return ticket.Clone(), nil
}

func (s *TicketStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.byNumber, ticket.Number)
	delete(s.tickets, id)
	return nil
}

func (s *TicketStore) ListStaleAwaiting(_ context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	var result []domain.Ticket
	for _, t := range s.tickets {
		if t.Status == domain.TicketStatusAwaitingUser && t.AwaitingUserSince != nil && t.AwaitingUserSince.Before(cutoff) {
			result = append(result, *t.Clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].AwaitingUserSince.Before(*result[j].AwaitingUserSince)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *TicketStore) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	var result []domain.Ticket
	for _, t := range s.tickets {
		if filter.UpdatedAfter != nil && !repository.PastKeyset(t.UpdatedAt, t.ID, *filter.UpdatedAfter, filter.AfterID) {
			continue
		}
		if filter.CreatorID != nil && t.Creator.ID != *filter.CreatorID {
			continue
		}
		if filter.AssigneeID != nil && t.AssigneeID() != *filter.AssigneeID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		result = append(result, *t.Clone())
	}
	s.mu.Unlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *TicketStore) CountByStatus(_ context.Context) (repository.StatusCounts, error) {
	counts := repository.StatusCounts{ByStatus: make(map[domain.TicketStatus]int64, len(domain.AllStatuses))}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		counts.ByStatus[t.Status]++
		if t.Status == domain.TicketStatusOpen && t.Assignee == nil {
			counts.OpenUnassigned++
		}
	}
	return counts, nil
}

func (s *TicketStore) WorkloadFor(_ context.Context, staffIDs []string, category string) (map[string]repository.Workload, error) {
	wanted := make(map[string]struct{}, len(staffIDs))
	for _, id := range staffIDs {
		wanted[id] = struct{}{}
	}
	result := make(map[string]repository.Workload, len(staffIDs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		id := t.AssigneeID()
		if _, ok := wanted[id]; !ok {
			continue
		}
		w := result[id]
		if repository.IsActive(t.Status) {
			w.ActiveLoad++
			if t.Priority == domain.TicketPriorityCritical {
				w.CriticalActive++
			}
		}
		if t.Category == category && repository.IsHandled(t.Status) {
			w.CategoryExperience++
		}
		result[id] = w
	}
	return result, nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
