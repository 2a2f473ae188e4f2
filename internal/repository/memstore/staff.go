package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// StaffStore keeps staff members keyed by id.
type StaffStore struct {
	mu    sync.RWMutex
	staff map[string]domain.StaffMember
}

// NewStaffStore creates a store seeded with members.
func NewStaffStore(members ...domain.StaffMember) *StaffStore {
	s := &StaffStore{staff: make(map[string]domain.StaffMember, len(members))}
	for _, m := range members {
		s.staff[m.ID] = m
	}
	return s
}

var _ repository.StaffRepository = (*StaffStore)(nil)

func (s *StaffStore) Upsert(_ context.Context, staff *domain.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[staff.ID] = *staff
	return nil
}

func (s *StaffStore) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	staff, ok := s.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &staff, nil
}

func (s *StaffStore) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	s.mu.RLock()
	var result []domain.StaffMember
	for _, m := range s.staff {
		if !filter.IncludeBlocked && m.Blocked {
			continue
		}
		if len(filter.Roles) > 0 && !containsRole(filter.Roles, m.Role) {
			continue
		}
		result = append(result, m)
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Login < result[j].Login })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func containsRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
