package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const (
	defaultRecentItems = 20
	maxPollItems       = 200
)

// NotificationService persists per-recipient notifications and announces
// every change on the bus.
type NotificationService struct {
	repo        repository.NotificationRepository
	bus         events.Bus
	clock       domain.Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
	recentItems int
	settle      time.Duration
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Repo        repository.NotificationRepository
	Bus         events.Bus
	Clock       domain.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	RecentItems int
	PollSettle  time.Duration
}

// NotifyInput describes a notification to create.
type NotifyInput struct {
	Recipient domain.Recipient
	Type      domain.NotificationType
	TicketID  string
	Title     string
	Message   string
	URL       string
	Meta      map[string]any
}

// Snapshot is what a push session sends to its client.
type Snapshot struct {
	UnreadCount int64                 `json:"unread_count"`
	RecentItems []domain.Notification `json:"recent_items"`
}

// NewNotificationService constructs the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RecentItems <= 0 {
		deps.RecentItems = defaultRecentItems
	}
	return &NotificationService{
		repo:        deps.Repo,
		bus:         deps.Bus,
		clock:       deps.Clock,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		recentItems: deps.RecentItems,
		settle:      deps.PollSettle,
	}
}

// Notify validates, persists and publishes one notification.
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (*domain.Notification, error) {
	if !in.Recipient.Kind.Valid() || in.Recipient.ID == "" {
		return nil, apperrors.NewValidationError("invalid recipient", map[string]any{"recipient": in.Recipient.Key()})
	}
	if in.Recipient.IsWildcard() && in.Recipient.Kind != domain.RecipientAdmin {
		return nil, apperrors.NewValidationError("only admins may be addressed by wildcard", nil)
	}
	if !in.Type.Valid() {
		return nil, apperrors.NewValidationError("invalid notification type", map[string]any{"type": in.Type})
	}

	n := &domain.Notification{
		ID:        uuid.NewString(),
		Recipient: in.Recipient,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		URL:       in.URL,
		Meta:      in.Meta,
		CreatedAt: s.clock.Now(),
	}
	if in.TicketID != "" {
		ticketID := in.TicketID
		n.TicketID = &ticketID
	}

	if err := s.repo.Insert(ctx, n); err != nil {
		s.metrics.RecordNotification(string(in.Type), false)
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.RecordNotification(string(in.Type), true)

	s.publish(ctx, in.Recipient, events.EventNotificationCreated, in.TicketID)
	return n, nil
}

// List returns the newest notifications visible to viewer.
func (s *NotificationService) List(ctx context.Context, viewer domain.Recipient, limit int, unreadOnly bool) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = s.recentItems
	}
	items, err := s.repo.ListForRecipient(ctx, viewer, repository.NotificationFilter{Limit: limit, UnreadOnly: unreadOnly})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// ListSince returns up to limit notifications after from, oldest first.
func (s *NotificationService) ListSince(ctx context.Context, viewer domain.Recipient, from Position, limit int) ([]domain.Notification, error) {
	items, err := s.repo.ListForRecipient(ctx, viewer, repository.NotificationFilter{
		CreatedAfter: &from.At,
		AfterID:      from.ID,
		Limit:        limit,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// Poll is the pull-gateway answer for the notification feed. Clients pass
// Cursor and CursorID back as the next position; HasMore means another page
// is ready right away.
type Poll struct {
	Cursor      time.Time             `json:"cursor"`
	CursorID    string                `json:"cursor_id,omitempty"`
	HasMore     bool                  `json:"has_more"`
	UnreadCount int64                 `json:"unread_count"`
	Items       []domain.Notification `json:"items"`
}

// Next is the position to poll from after this page.
func (p Poll) Next() *Position {
	return &Position{At: p.Cursor, ID: p.CursorID}
}

// Poll returns notifications after from, oldest first and at most limit of
// them. A nil from returns the recent items newest first.
func (s *NotificationService) Poll(ctx context.Context, viewer domain.Recipient, from *Position, limit int) (Poll, error) {
	if limit <= 0 {
		limit = s.recentItems
	}
	if limit > maxPollItems {
		limit = maxPollItems
	}
	readAt := s.clock.Now()

	var (
		items []domain.Notification
		last  *Position
		full  bool
		err   error
	)
	if from == nil {
		items, err = s.List(ctx, viewer, limit, false)
		if len(items) > 0 {
			last = &Position{At: items[0].CreatedAt, ID: items[0].ID}
		}
	} else {
		items, err = s.ListSince(ctx, viewer, *from, limit)
		if n := len(items); n > 0 {
			last = &Position{At: items[n-1].CreatedAt, ID: items[n-1].ID}
			full = n == limit
		}
	}
	if err != nil {
		return Poll{}, err
	}
	count, err := s.UnreadCount(ctx, viewer)
	if err != nil {
		return Poll{}, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	next := nextPosition(from, last, full, readAt, s.settle)
	return Poll{
		Cursor:      next.At,
		CursorID:    next.ID,
		HasMore:     full,
		UnreadCount: count,
		Items:       items,
	}, nil
}

// UnreadCount returns the number of unread notifications for viewer.
func (s *NotificationService) UnreadCount(ctx context.Context, viewer domain.Recipient) (int64, error) {
	count, err := s.repo.CountUnread(ctx, viewer)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

// Snapshot returns the unread count and the most recent items.
func (s *NotificationService) Snapshot(ctx context.Context, viewer domain.Recipient) (Snapshot, error) {
	count, err := s.UnreadCount(ctx, viewer)
	if err != nil {
		return Snapshot{}, err
	}
	items, err := s.List(ctx, viewer, s.recentItems, false)
	if err != nil {
		return Snapshot{}, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return Snapshot{UnreadCount: count, RecentItems: items}, nil
}

// MarkRead sets readAt on one notification. Re-marking is a no-op that
// reports zero modified.
func (s *NotificationService) MarkRead(ctx context.Context, id string, viewer domain.Recipient) (int64, error) {
	modified, err := s.repo.MarkRead(ctx, id, viewer, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return 0, apperrors.MapError(err)
	}
	s.publishRead(ctx, viewer)
	return modified, nil
}

// MarkAllRead marks every unread notification visible to viewer.
func (s *NotificationService) MarkAllRead(ctx context.Context, viewer domain.Recipient) (int64, error) {
	modified, err := s.repo.MarkAllRead(ctx, viewer, s.clock.Now())
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	s.publishRead(ctx, viewer)
	return modified, nil
}

// DeleteForTicket removes every notification that references ticketID.
func (s *NotificationService) DeleteForTicket(ctx context.Context, ticketID string) (int64, error) {
	removed, err := s.repo.DeleteByTicket(ctx, ticketID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return removed, nil
}

// publishRead refreshes the viewer and, for admins, every session that
// shares wildcard read state.
func (s *NotificationService) publishRead(ctx context.Context, viewer domain.Recipient) {
	s.publish(ctx, viewer, events.EventNotificationsRead, "")
	if viewer.Kind == domain.RecipientAdmin && !viewer.IsWildcard() {
		s.publish(ctx, domain.AllAdmins, events.EventNotificationsRead, "")
	}
}

func (s *NotificationService) publish(ctx context.Context, recipient domain.Recipient, kind events.EventType, ticketID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Key:       recipient.Key(),
		Type:      kind,
		TicketID:  ticketID,
		Timestamp: s.clock.Now(),
	})
}
