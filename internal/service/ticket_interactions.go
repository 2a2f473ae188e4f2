package service

import (
	"context"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// InteractionKind selects what an interaction records.
type InteractionKind string

const (
	InteractionMessage      InteractionKind = "message"
	InteractionSolution     InteractionKind = "solution"
	InteractionInternalNote InteractionKind = "internal_note"
)

func (k InteractionKind) historyType() (domain.HistoryType, bool) {
	switch k {
	case InteractionMessage:
		return domain.HistoryMessage, true
	case InteractionSolution:
		return domain.HistorySolution, true
	case InteractionInternalNote:
		return domain.HistoryInternalNote, true
	}
	return "", false
}

// AttachmentInput is an attachment descriptor produced by the upload layer.
type AttachmentInput struct {
	ID           string
	OriginalName string
	StoredName   string
	MimeType     string
	Size         int64
	RelativePath string
}

// InteractionInput describes a message, solution or internal note.
type InteractionInput struct {
	Kind        InteractionKind
	Text        string
	Attachments []AttachmentInput
	// TransitionTo optionally moves an awaiting_user ticket back to
	// in_progress when staff follow up with a message.
	TransitionTo *domain.TicketStatus
}

var activeStatuses = []domain.TicketStatus{
	domain.TicketStatusOpen,
	domain.TicketStatusInProgress,
	domain.TicketStatusAwaitingUser,
}

// AddInteraction appends a message, solution or internal note.
func (s *TicketService) AddInteraction(ctx context.Context, ticketID string, author domain.Identity, in InteractionInput) (*domain.Ticket, error) {
	historyType, ok := in.Kind.historyType()
	if !ok {
		return nil, apperrors.NewValidationError("invalid interaction kind", map[string]any{"kind": in.Kind})
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Attachments) == 0 {
		return nil, apperrors.NewValidationError("text or attachment required", nil)
	}
	if utf8.RuneCountInString(text) > s.limits.InteractionMax {
		return nil, apperrors.NewValidationError("text too long", map[string]any{"max": s.limits.InteractionMax})
	}
	attachments, err := s.sanitizeAttachments(in.Attachments)
	if err != nil {
		return nil, err
	}

	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	isCreator := current.Creator.ID == author.ID
	if in.Kind == InteractionMessage && !isCreator && !author.Role.IsStaff() {
		return nil, apperrors.NewForbidden("access denied")
	}
	if in.Kind != InteractionMessage && !author.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may post " + string(in.Kind))
	}

	entry := s.entry(historyType, author, text, nil)
	entry.Attachments = attachments
	now := s.clock.Now()
	guard := repository.TicketGuard{Statuses: activeStatuses}
	mutation := repository.TicketMutation{Append: &entry, At: now}

	switch in.Kind {
	case InteractionSolution:
		awaiting := domain.TargetOf(domain.OpSolve)
		guard.Statuses = domain.SourcesOf(domain.OpSolve)
		mutation.Status = &awaiting
		mutation.Solution = &repository.SolutionUpdate{Text: text, At: now, By: author}
		mutation.SetAwaitingSince = true
		mutation.AwaitingSince = &now
	case InteractionMessage:
		if in.TransitionTo != nil {
			if *in.TransitionTo != domain.TargetOf(domain.OpResume) || !author.Role.IsStaff() {
				return nil, apperrors.NewValidationError("unsupported transition", map[string]any{"transition_to": *in.TransitionTo})
			}
			inProgress := domain.TargetOf(domain.OpResume)
			guard.Statuses = domain.SourcesOf(domain.OpResume)
			mutation.Status = &inProgress
			mutation.SetAwaitingSince = true
			entry.Meta = map[string]any{"to": string(inProgress)}
		}
	}

	ticket, err := s.tickets.Update(ctx, ticketID, guard, mutation)
	if err != nil {
		return nil, s.rejected(ctx, string(in.Kind), ticketID, err, func(cur *domain.Ticket) error {
			return apperrors.NewInvalidState(string(in.Kind)+" not allowed in current status", map[string]any{
				"ticket_id": ticketID,
				"status":    cur.Status,
			})
		})
	}
	if mutation.Status != nil {
		s.metrics.RecordTransition(string(in.Kind), string(ticket.Status))
	}
	s.logger.Debug("interaction added",
		zap.String("ticket_id", ticketID),
		zap.String("kind", string(in.Kind)),
		zap.String("author", author.ID))

	s.notifyInteraction(ctx, ticket, author, in.Kind)
	return VisibleTo(author, ticket), nil
}

// sanitizeAttachments keeps metadata only and refuses paths that could
// leave the attachment root.
func (s *TicketService) sanitizeAttachments(in []AttachmentInput) ([]domain.Attachment, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if s.limits.MaxAttachments > 0 && len(in) > s.limits.MaxAttachments {
		return nil, apperrors.NewValidationError("too many attachments", map[string]any{"max": s.limits.MaxAttachments})
	}
	out := make([]domain.Attachment, 0, len(in))
	for i, a := range in {
		detail := map[string]any{"index": i}
		stored := baseName(a.StoredName)
		if stored == "" {
			return nil, apperrors.NewValidationError("attachment stored name required", detail)
		}
		if a.Size <= 0 || (s.limits.MaxAttachmentSize > 0 && a.Size > s.limits.MaxAttachmentSize) {
			return nil, apperrors.NewValidationError("attachment size out of bounds", detail)
		}
		rel, ok := cleanRelative(a.RelativePath)
		if !ok {
			return nil, apperrors.NewValidationError("attachment path escapes storage root", detail)
		}
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		original := baseName(a.OriginalName)
		if original == "" {
			original = stored
		}
		out = append(out, domain.Attachment{
			ID:           id,
			OriginalName: original,
			StoredName:   stored,
			MimeType:     strings.TrimSpace(a.MimeType),
			Size:         a.Size,
			RelativePath: rel,
		})
	}
	return out, nil
}

func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == ".." || base == "/" {
		return ""
	}
	return base
}

func cleanRelative(p string) (string, bool) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, ":") {
		return "", false
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
