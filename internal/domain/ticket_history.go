package domain

import "time"

// HistoryType is the closed set of audit events recorded on a ticket.
type HistoryType string

const (
	HistoryCreation     HistoryType = "creation"
	HistoryAssignment   HistoryType = "assignment"
	HistoryTransfer     HistoryType = "transfer"
	HistoryMessage      HistoryType = "message"
	HistorySolution     HistoryType = "solution"
	HistoryInternalNote HistoryType = "internal_note"
	HistoryStatus       HistoryType = "status"
	HistoryEdit         HistoryType = "edit"
)

// Valid reports whether h is a known history type.
func (h HistoryType) Valid() bool {
	switch h {
	case HistoryCreation, HistoryAssignment, HistoryTransfer, HistoryMessage,
		HistorySolution, HistoryInternalNote, HistoryStatus, HistoryEdit:
		return true
	}
	return false
}

// VisibleToRequester reports whether the requester may see entries of this type.
func (h HistoryType) VisibleToRequester() bool {
	switch h {
	case HistoryCreation, HistoryAssignment, HistoryTransfer, HistoryMessage,
		HistorySolution, HistoryStatus, HistoryEdit:
		return true
	case HistoryInternalNote:
		return false
	}
	return false
}

// HistoryEntry is an immutable audit trail entry.
type HistoryEntry struct {
	ID          string         `json:"id"`
	Type        HistoryType    `json:"type"`
	At          time.Time      `json:"at"`
	By          Person         `json:"by"`
	Message     string         `json:"message,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// Clone copies the entry including its meta map and attachments.
func (h HistoryEntry) Clone() HistoryEntry {
	out := h
	if h.Meta != nil {
		out.Meta = make(map[string]any, len(h.Meta))
		for k, v := range h.Meta {
			out.Meta[k] = v
		}
	}
	out.Attachments = append([]Attachment(nil), h.Attachments...)
	return out
}

// Attachment stores sanitized file metadata. File bytes live elsewhere.
type Attachment struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	StoredName   string `json:"stored_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	RelativePath string `json:"relative_path"`
}
