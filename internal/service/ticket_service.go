package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/catalog"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/sequence"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketService coordinates ticket workflows. Every state change is a single
// guarded update against the store; nothing here locks.
type TicketService struct {
	tickets       repository.TicketRepository
	staff         repository.StaffRepository
	notifications *NotificationService
	numbers       *sequence.Generator
	catalog       catalog.Checker
	clock         domain.Clock
	limits        config.TicketConfig
	logger        *zap.Logger
	metrics       *observability.Metrics

	engine     *AssignmentEngine
	autoAssign bool
	settle     time.Duration

	background sync.WaitGroup
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	StaffRepo     repository.StaffRepository
	Notifications *NotificationService
	Numbers       *sequence.Generator
	Catalog       catalog.Checker
	Clock         domain.Clock
	Limits        config.TicketConfig
	Assignment    config.AssignmentConfig
	// PollSettle holds dashboard cursors back; see nextPosition.
	PollSettle time.Duration
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Title       string
	Description string
	Category    string
	Priority    domain.TicketPriority
}

// NewTicketService constructs the service and its assignment engine.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Limits == (config.TicketConfig{}) {
		deps.Limits = config.DefaultTicketConfig()
	}
	s := &TicketService{
		tickets:       deps.TicketRepo,
		staff:         deps.StaffRepo,
		notifications: deps.Notifications,
		numbers:       deps.Numbers,
		catalog:       deps.Catalog,
		clock:         deps.Clock,
		limits:        deps.Limits,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		autoAssign:    deps.Assignment.Enabled,
		settle:        deps.PollSettle,
	}
	s.engine = NewAssignmentEngine(AssignmentDependencies{
		StaffRepo:    deps.StaffRepo,
		TicketRepo:   deps.TicketRepo,
		Claimer:      s,
		AdminPenalty: deps.Assignment.AdminPenalty,
		Logger:       deps.Logger,
		Metrics:      deps.Metrics,
	})
	return s
}

// Engine exposes the assignment engine used for triage.
func (s *TicketService) Engine() *AssignmentEngine {
	return s.engine
}

// Wait blocks until background triage attempts have finished.
func (s *TicketService) Wait() {
	s.background.Wait()
}

// Create validates and stores a new open, unassigned ticket.
func (s *TicketService) Create(ctx context.Context, creator domain.Identity, in CreateTicketInput) (*domain.Ticket, error) {
	if creator.IsZero() {
		return nil, apperrors.NewUnauthorized("identity required")
	}
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if err := s.validateText("title", title, s.limits.TitleMin, s.limits.TitleMax); err != nil {
		return nil, err
	}
	if err := s.validateText("description", description, s.limits.DescriptionMin, s.limits.DescriptionMax); err != nil {
		return nil, err
	}
	if err := s.validateClassification(ctx, in.Category, in.Priority); err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		ID:                      uuid.NewString(),
		Number:                  number,
		Title:                   title,
		Description:             description,
		Category:                in.Category,
		Priority:                in.Priority,
		Status:                  domain.TicketStatusOpen,
		Creator:                 creator,
		SupportHelpers:          []domain.SupportHelper{},
		NotificationSubscribers: []domain.Person{},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	ticket.History = []domain.HistoryEntry{
		s.entry(domain.HistoryCreation, creator, "", map[string]any{"number": number}),
	}

	if err := s.tickets.Insert(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicateNumber) {
			return nil, apperrors.NewInternalError(err)
		}
		return nil, apperrors.MapError(err)
	}
	s.metrics.RecordTransition("create", string(domain.TicketStatusOpen))
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("number", ticket.Number),
		zap.String("creator", creator.ID))

	s.notifyQueue(ctx, ticket)
	s.scheduleTriage(ctx, ticket.ID)
	return ticket, nil
}

// Get returns a ticket as viewer may see it.
func (s *TicketService) Get(ctx context.Context, viewer domain.Identity, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(viewer, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return VisibleTo(viewer, ticket), nil
}

// Claim assigns the ticket to the calling technician.
func (s *TicketService) Claim(ctx context.Context, ticketID string, technician domain.Identity) (*domain.Ticket, error) {
	if !technician.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may claim tickets")
	}
	return s.ClaimAs(ctx, ticketID, technician, technician)
}

// ClaimAs performs the guarded claim on behalf of actor. The assignment
// engine calls it with the system actor.
func (s *TicketService) ClaimAs(ctx context.Context, ticketID string, assignee, actor domain.Person) (*domain.Ticket, error) {
	inProgress := domain.TargetOf(domain.OpClaim)
	guard := repository.TicketGuard{
		Statuses:       domain.SourcesOf(domain.OpClaim),
		AssigneeNullOr: assignee.ID,
	}
	meta := map[string]any{"assignee": assignee.ID}
	if actor.ID != assignee.ID {
		meta["assigned_by"] = actor.ID
	}
	mutation := repository.TicketMutation{
		Status:      &inProgress,
		SetAssignee: true,
		Assignee:    &assignee,
		Append:      ptr(s.entry(domain.HistoryAssignment, actor, "", meta)),
		At:          s.clock.Now(),
	}

	ticket, err := s.tickets.Update(ctx, ticketID, guard, mutation)
	if err != nil {
		return nil, s.rejected(ctx, "claim", ticketID, err, func(current *domain.Ticket) error {
			if domain.OpClaim.AllowedFrom(current.Status) {
				return apperrors.NewConflict("ticket already claimed by someone else", map[string]any{"ticket_id": ticketID})
			}
			return apperrors.NewConflict("ticket cannot be claimed in its current status", map[string]any{
				"ticket_id": ticketID,
				"status":    current.Status,
			})
		})
	}
	s.metrics.RecordTransition(string(domain.OpClaim), string(ticket.Status))
	s.logger.Info("ticket claimed",
		zap.String("ticket_id", ticketID),
		zap.String("assignee", assignee.ID),
		zap.String("actor", actor.ID))

	s.notifyAssigned(ctx, ticket, assignee, actor)
	return ticket, nil
}

// Reassign transfers ownership, or returns the ticket to the queue when
// newAssignee is nil.
func (s *TicketService) Reassign(ctx context.Context, ticketID string, actor domain.Identity, newAssignee *domain.Person) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may reassign tickets")
	}
	if newAssignee != nil {
		resolved, err := s.eligibleStaff(ctx, newAssignee.ID)
		if err != nil {
			return nil, err
		}
		newAssignee = resolved
	}

	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	previous := current.AssigneeID()

	op := domain.OpRelease
	to := ""
	if newAssignee != nil {
		op = domain.OpTransfer
		to = newAssignee.ID
	}
	status := domain.TargetOf(op)
	guard := repository.TicketGuard{
		Statuses:   domain.SourcesOf(op),
		AssigneeIs: &previous,
	}
	mutation := repository.TicketMutation{
		Status:           &status,
		SetAssignee:      true,
		Assignee:         newAssignee,
		SetAwaitingSince: true,
		Append: ptr(s.entry(domain.HistoryTransfer, actor, "", map[string]any{
			"from": previous,
			"to":   to,
		})),
		At: s.clock.Now(),
	}

	ticket, err := s.tickets.Update(ctx, ticketID, guard, mutation)
	if err != nil {
		return nil, s.rejected(ctx, "reassign", ticketID, err, func(current *domain.Ticket) error {
			if current.Status == domain.TicketStatusClosed {
				return apperrors.NewInvalidState("closed tickets cannot be reassigned", map[string]any{"ticket_id": ticketID})
			}
			if !op.AllowedFrom(current.Status) {
				return apperrors.NewInvalidState("ticket is already in the queue", map[string]any{"ticket_id": ticketID})
			}
			return apperrors.NewConflict("ticket owner changed concurrently", map[string]any{"ticket_id": ticketID})
		})
	}
	s.metrics.RecordTransition(string(op), string(ticket.Status))
	s.logger.Info("ticket reassigned",
		zap.String("ticket_id", ticketID),
		zap.String("from", previous),
		zap.String("to", to))

	if newAssignee == nil {
		s.notifyQueue(ctx, ticket)
		s.scheduleTriage(ctx, ticket.ID)
	} else {
		s.notifyAssigned(ctx, ticket, *newAssignee, actor)
	}
	return ticket, nil
}

// Delete removes a ticket and cascades to its notifications.
func (s *TicketService) Delete(ctx context.Context, ticketID string, actor domain.Identity) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("only admins may delete tickets")
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	removed, err := s.notifications.DeleteForTicket(ctx, ticketID)
	if err != nil {
		s.logger.Warn("notification cascade failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	s.logger.Info("ticket deleted",
		zap.String("ticket_id", ticketID),
		zap.Int64("notifications_removed", removed))
	return nil
}

// Triage runs the assignment engine for an open, unassigned ticket.
func (s *TicketService) Triage(ctx context.Context, ticketID string) (AssignmentResult, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return AssignmentResult{}, err
	}
	return s.engine.Assign(ctx, ticket)
}

// scheduleTriage runs Triage in the background when auto-assignment is on.
// Failures are logged; the next owner-releasing event tries again.
func (s *TicketService) scheduleTriage(ctx context.Context, ticketID string) {
	if !s.autoAssign {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		result, err := s.Triage(ctx, ticketID)
		if err != nil {
			s.logger.Warn("triage failed", zap.String("ticket_id", ticketID), zap.Error(err))
			return
		}
		s.logger.Debug("triage finished",
			zap.String("ticket_id", ticketID),
			zap.String("outcome", string(result.Outcome)))
	}()
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// rejected translates a failed guarded update. When the guard did not hold,
// the current document is re-read only to describe why.
func (s *TicketService) rejected(ctx context.Context, operation, ticketID string, err error, describe func(*domain.Ticket) error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, repository.ErrGuardRejected):
		current, loadErr := s.load(ctx, ticketID)
		if loadErr != nil {
			return loadErr
		}
		out := describe(current)
		if de := apperrors.ToDomainError(out); de != nil {
			s.metrics.RecordRejection(operation, de.Code)
		}
		return out
	default:
		return apperrors.MapError(err)
	}
}

func (s *TicketService) eligibleStaff(ctx context.Context, staffID string) (*domain.Person, error) {
	member, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidationError("unknown staff member", map[string]any{"staff_id": staffID})
		}
		return nil, apperrors.MapError(err)
	}
	if !member.Eligible() {
		return nil, apperrors.NewValidationError("staff member cannot receive tickets", map[string]any{"staff_id": staffID})
	}
	person := member.Person
	return &person, nil
}

func (s *TicketService) entry(kind domain.HistoryType, by domain.Person, message string, meta map[string]any) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:      uuid.NewString(),
		Type:    kind,
		At:      s.clock.Now(),
		By:      by,
		Message: message,
		Meta:    meta,
	}
}

func (s *TicketService) validateText(field, value string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(value)
	if n < minLen || n > maxLen {
		return apperrors.NewValidationError(field+" length out of bounds", map[string]any{
			"field": field,
			"min":   minLen,
			"max":   maxLen,
		})
	}
	return nil
}

func (s *TicketService) validateClassification(ctx context.Context, category string, priority domain.TicketPriority) error {
	if err := s.checkActive(ctx, catalog.KindCategory, category); err != nil {
		return err
	}
	return s.checkActive(ctx, catalog.KindPriority, string(priority))
}

func (s *TicketService) checkActive(ctx context.Context, kind catalog.Kind, key string) error {
	if s.catalog == nil {
		return nil
	}
	active, err := s.catalog.IsActive(ctx, kind, key)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !active {
		return apperrors.NewValidationError(string(kind)+" is not active", map[string]any{string(kind): key})
	}
	return nil
}

func canView(viewer domain.Identity, ticket *domain.Ticket) bool {
	return viewer.Role.IsStaff() || ticket.Creator.ID == viewer.ID
}

// VisibleTo strips entries the viewer may not see.
func VisibleTo(viewer domain.Identity, ticket *domain.Ticket) *domain.Ticket {
	if viewer.Role.IsStaff() {
		return ticket
	}
	out := ticket.Clone()
	out.History = visibleHistory(viewer, out.History)
	return out
}

func visibleHistory(viewer domain.Identity, entries []domain.HistoryEntry) []domain.HistoryEntry {
	if viewer.Role.IsStaff() {
		return entries
	}
	kept := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Type.VisibleToRequester() {
			kept = append(kept, e)
		}
	}
	return kept
}

func ptr[T any](v T) *T {
	return &v
}
