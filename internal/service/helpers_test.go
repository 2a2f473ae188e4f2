package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/catalog"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository/memstore"
	"github.com/spec-kit/helpdesk/internal/sequence"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	requester = domain.Person{ID: "u-1", Name: "Ana Souza", Login: "ana", Role: domain.RoleRequester}
	techA     = domain.Person{ID: "t-a", Name: "Bruno Lima", Login: "bruno", Role: domain.RoleTechnician}
	techB     = domain.Person{ID: "t-b", Name: "Carla Dias", Login: "carla", Role: domain.RoleTechnician}
	admin     = domain.Person{ID: "a-1", Name: "Dora Reis", Login: "dora", Role: domain.RoleAdmin}
)

func staffMember(p domain.Person) domain.StaffMember {
	return domain.StaffMember{Person: p}
}

type harness struct {
	clock         *fakeClock
	tickets       *memstore.TicketStore
	staff         *memstore.StaffStore
	store         *memstore.NotificationStore
	bus           events.Bus
	catalog       *catalog.Catalog
	notifications *NotificationService
	svc           *TicketService
	seeded        int64
}

func newHarness(t *testing.T, autoAssign bool, staff ...domain.StaffMember) *harness {
	t.Helper()
	h := &harness{
		clock:   &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		tickets: memstore.NewTicketStore(),
		staff:   memstore.NewStaffStore(staff...),
		store:   memstore.NewNotificationStore(),
		bus:     events.NewInMemoryBus(),
		catalog: catalog.Default(),
	}
	h.notifications = NewNotificationService(NotificationDependencies{
		Repo:  h.store,
		Bus:   h.bus,
		Clock: h.clock,
	})
	h.svc = NewTicketService(TicketDependencies{
		TicketRepo:    h.tickets,
		StaffRepo:     h.staff,
		Notifications: h.notifications,
		Numbers:       sequence.NewGenerator(memstore.NewCounter(), false, h.clock),
		Catalog:       h.catalog,
		Clock:         h.clock,
		Assignment:    config.AssignmentConfig{Enabled: autoAssign, AdminPenalty: DefaultAdminPenalty},
	})
	t.Cleanup(h.svc.Wait)
	return h
}

// seed inserts a ticket directly in the given state.
func (h *harness) seed(t *testing.T, status domain.TicketStatus, assignee *domain.Person, mods ...func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	h.seeded++
	now := h.clock.Now()
	ticket := &domain.Ticket{
		ID:                      uuid.NewString(),
		Number:                  900000 + h.seeded,
		Title:                   "Printer is jammed",
		Description:             "The printer on floor 2 keeps jamming.",
		Category:                "hardware",
		Priority:                domain.TicketPriorityMedium,
		Status:                  status,
		Creator:                 requester,
		Assignee:                assignee,
		SupportHelpers:          []domain.SupportHelper{},
		NotificationSubscribers: []domain.Person{},
		History: []domain.HistoryEntry{
			{ID: uuid.NewString(), Type: domain.HistoryCreation, At: now, By: requester},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch status {
	case domain.TicketStatusAwaitingUser:
		ticket.AwaitingUserSince = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
	}
	for _, mod := range mods {
		mod(ticket)
	}
	require.NoError(t, h.tickets.Insert(context.Background(), ticket))
	return ticket
}

func (h *harness) reload(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (h *harness) notificationsFor(t *testing.T, p domain.Person) []domain.Notification {
	t.Helper()
	items, err := h.notifications.List(context.Background(), domain.RecipientFor(p), 100, false)
	require.NoError(t, err)
	return items
}

func countHistory(ticket *domain.Ticket, kind domain.HistoryType) int {
	n := 0
	for _, e := range ticket.History {
		if e.Type == kind {
			n++
		}
	}
	return n
}

func hasType(items []domain.Notification, kind domain.NotificationType) bool {
	for _, n := range items {
		if n.Type == kind {
			return true
		}
	}
	return false
}
