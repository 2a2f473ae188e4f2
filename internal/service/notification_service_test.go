package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

func TestNotify_ValidatesAndPublishes(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	var published int32
	h.bus.Subscribe(events.Subscription{Key: "technician:" + techA.ID}, func(_ context.Context, e events.Event) {
		assert.Equal(t, events.EventNotificationCreated, e.Type)
		atomic.AddInt32(&published, 1)
	})

	_, err := h.notifications.Notify(ctx, NotifyInput{
		Recipient: domain.Recipient{Kind: "guest", ID: "x"},
		Type:      domain.NotificationAssigned,
	})
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.notifications.Notify(ctx, NotifyInput{
		Recipient: domain.RecipientFor(techA),
		Type:      "poke",
	})
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.notifications.Notify(ctx, NotifyInput{
		Recipient: domain.Recipient{Kind: domain.RecipientTechnician, ID: domain.WildcardID},
		Type:      domain.NotificationAssigned,
	})
	assert.True(t, apperrors.IsValidation(err))

	n, err := h.notifications.Notify(ctx, NotifyInput{
		Recipient: domain.RecipientFor(techA),
		Type:      domain.NotificationAssigned,
		TicketID:  "tk-1",
		Title:     "Ticket assigned to you",
	})
	require.NoError(t, err)
	assert.True(t, n.Unread())
	require.NotNil(t, n.TicketID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&published))
}

func TestMarkRead_IsIdempotent(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	viewer := domain.RecipientFor(techA)

	modified, err := h.notifications.MarkAllRead(ctx, viewer)
	require.NoError(t, err)
	assert.Zero(t, modified)

	n, err := h.notifications.Notify(ctx, NotifyInput{Recipient: viewer, Type: domain.NotificationNewMessage})
	require.NoError(t, err)

	modified, err = h.notifications.MarkRead(ctx, n.ID, viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	modified, err = h.notifications.MarkRead(ctx, n.ID, viewer)
	require.NoError(t, err)
	assert.Zero(t, modified)

	_, err = h.notifications.MarkRead(ctx, n.ID, domain.RecipientFor(techB))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMarkAllRead_RepublishesRecipientKey(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	viewer := domain.RecipientFor(admin)

	var own, wildcard int32
	h.bus.Subscribe(events.Subscription{Key: viewer.Key()}, func(context.Context, events.Event) { atomic.AddInt32(&own, 1) })
	h.bus.Subscribe(events.Subscription{Key: domain.AllAdmins.Key()}, func(context.Context, events.Event) { atomic.AddInt32(&wildcard, 1) })

	_, err := h.notifications.MarkAllRead(ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&own))
	assert.Equal(t, int32(1), atomic.LoadInt32(&wildcard))
}

func TestSnapshot_WildcardVisibleToEveryAdmin(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	other := domain.Person{ID: "a-2", Login: "eli", Role: domain.RoleAdmin}

	_, err := h.notifications.Notify(ctx, NotifyInput{Recipient: domain.AllAdmins, Type: domain.NotificationNewTicketInQueue})
	require.NoError(t, err)
	_, err = h.notifications.Notify(ctx, NotifyInput{Recipient: domain.RecipientFor(admin), Type: domain.NotificationAssigned})
	require.NoError(t, err)

	mine, err := h.notifications.Snapshot(ctx, domain.RecipientFor(admin))
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.UnreadCount)
	assert.Len(t, mine.RecentItems, 2)

	theirs, err := h.notifications.Snapshot(ctx, domain.RecipientFor(other))
	require.NoError(t, err)
	assert.Equal(t, int64(1), theirs.UnreadCount)

	techView, err := h.notifications.Snapshot(ctx, domain.RecipientFor(techA))
	require.NoError(t, err)
	assert.Zero(t, techView.UnreadCount)
	assert.NotNil(t, techView.RecentItems)
}

func TestPoll_ReturnsOnlyNewerItems(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	viewer := domain.RecipientFor(requester)

	_, err := h.notifications.Notify(ctx, NotifyInput{Recipient: viewer, Type: domain.NotificationStatusChanged})
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	first, err := h.notifications.Poll(ctx, viewer, nil, 0)
	require.NoError(t, err)
	assert.Len(t, first.Items, 1)
	assert.Equal(t, int64(1), first.UnreadCount)

	empty, err := h.notifications.Poll(ctx, viewer, first.Next(), 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.NotNil(t, empty.Items)

	h.clock.Advance(time.Second)
	_, err = h.notifications.Notify(ctx, NotifyInput{Recipient: viewer, Type: domain.NotificationNewMessage})
	require.NoError(t, err)

	next, err := h.notifications.Poll(ctx, viewer, first.Next(), 0)
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, domain.NotificationNewMessage, next.Items[0].Type)
	assert.Equal(t, int64(2), next.UnreadCount)
}

func TestPoll_PagesThroughBacklog(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	viewer := domain.RecipientFor(requester)

	start, err := h.notifications.Poll(ctx, viewer, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, start.Items)

	for i := 0; i < 25; i++ {
		if i == 12 {
			h.clock.Advance(time.Second)
		}
		_, err := h.notifications.Notify(ctx, NotifyInput{Recipient: viewer, Type: domain.NotificationNewMessage})
		require.NoError(t, err)
	}

	seen := map[string]int{}
	from := start.Next()
	polls := 0
	for {
		polls++
		require.LessOrEqual(t, polls, 10)
		page, err := h.notifications.Poll(ctx, viewer, from, 10)
		require.NoError(t, err)
		for _, n := range page.Items {
			seen[n.ID]++
		}
		assert.EqualValues(t, 25, page.UnreadCount)
		from = page.Next()
		if !page.HasMore {
			break
		}
	}

	assert.Equal(t, 3, polls)
	assert.Len(t, seen, 25)
	for id, n := range seen {
		assert.Equal(t, 1, n, "notification %s delivered more than once", id)
	}
}

func TestPoll_SettleWindowRereadsLateCommits(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	viewer := domain.RecipientFor(requester)
	notifications := NewNotificationService(NotificationDependencies{
		Repo:       h.store,
		Bus:        h.bus,
		Clock:      h.clock,
		PollSettle: 2 * time.Second,
	})
	base := h.clock.Now()

	_, err := notifications.Notify(ctx, NotifyInput{Recipient: viewer, Type: domain.NotificationStatusChanged})
	require.NoError(t, err)
	h.clock.Advance(4500 * time.Millisecond)
	recent, err := notifications.Notify(ctx, NotifyInput{Recipient: viewer, Type: domain.NotificationNewMessage})
	require.NoError(t, err)
	h.clock.Advance(500 * time.Millisecond)

	first, err := notifications.Poll(ctx, viewer, &Position{}, 10)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, base.Add(3*time.Second), first.Cursor)
	assert.Empty(t, first.CursorID)

	// Stamped before the poll above but stored after it.
	require.NoError(t, h.store.Insert(ctx, &domain.Notification{
		ID:        "late",
		Recipient: viewer,
		Type:      domain.NotificationAssigned,
		CreatedAt: base.Add(4 * time.Second),
	}))

	next, err := notifications.Poll(ctx, viewer, first.Next(), 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(next.Items))
	for _, n := range next.Items {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"late", recent.ID}, ids)

	// Once the window has passed the cursor moves to the newest record.
	h.clock.Advance(time.Minute)
	settled, err := notifications.Poll(ctx, viewer, next.Next(), 10)
	require.NoError(t, err)
	assert.Len(t, settled.Items, 2)
	assert.Equal(t, recent.CreatedAt, settled.Cursor)
	assert.Equal(t, recent.ID, settled.CursorID)

	idle, err := notifications.Poll(ctx, viewer, settled.Next(), 10)
	require.NoError(t, err)
	assert.Empty(t, idle.Items)
	assert.Equal(t, recent.ID, idle.CursorID)
}
