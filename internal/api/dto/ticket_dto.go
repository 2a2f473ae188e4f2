package dto

import (
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    string                `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
}

// EditTicketRequest payload. Absent fields are left untouched.
type EditTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Category    *string                `json:"category"`
	Priority    *domain.TicketPriority `json:"priority"`
}

// InteractionRequest payload for messages, solutions and internal notes.
type InteractionRequest struct {
	Kind         string               `json:"kind"`
	Text         string               `json:"text"`
	Attachments  []AttachmentRequest  `json:"attachments"`
	TransitionTo *domain.TicketStatus `json:"transition_to,omitempty"`
}

// AttachmentRequest describes an already uploaded file.
type AttachmentRequest struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	StoredName   string `json:"stored_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	RelativePath string `json:"relative_path"`
}

// ConfirmSolutionRequest payload.
type ConfirmSolutionRequest struct {
	Comment string `json:"comment"`
}

// ReopenRequest payload.
type ReopenRequest struct {
	Reason string `json:"reason"`
}

// ReassignRequest payload. A null assignee returns the ticket to the queue.
type ReassignRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// HelperRequest payload.
type HelperRequest struct {
	StaffID string `json:"staff_id"`
}

// AssignmentResponse reports an assignment engine run.
type AssignmentResponse struct {
	Outcome  service.AssignmentOutcome `json:"outcome"`
	Assignee *domain.Person            `json:"assignee,omitempty"`
	Ticket   *domain.Ticket            `json:"ticket,omitempty"`
}

// ToCreateInput maps the payload onto the service input.
func (r CreateTicketRequest) ToCreateInput() service.CreateTicketInput {
	return service.CreateTicketInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Priority:    r.Priority,
	}
}

// ToEditInput maps the payload onto the service input.
func (r EditTicketRequest) ToEditInput() service.EditTicketInput {
	return service.EditTicketInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Priority:    r.Priority,
	}
}

// ToInteractionInput maps the payload onto the service input.
func (r InteractionRequest) ToInteractionInput() service.InteractionInput {
	attachments := make([]service.AttachmentInput, 0, len(r.Attachments))
	for _, att := range r.Attachments {
		attachments = append(attachments, service.AttachmentInput{
			ID:           att.ID,
			OriginalName: att.OriginalName,
			StoredName:   att.StoredName,
			MimeType:     att.MimeType,
			Size:         att.Size,
			RelativePath: att.RelativePath,
		})
	}
	return service.InteractionInput{
		Kind:         service.InteractionKind(r.Kind),
		Text:         r.Text,
		Attachments:  attachments,
		TransitionTo: r.TransitionTo,
	}
}

// NewAssignmentResponse converts an engine result.
func NewAssignmentResponse(result service.AssignmentResult) AssignmentResponse {
	return AssignmentResponse{Outcome: result.Outcome, Assignee: result.Assignee, Ticket: result.Ticket}
}
