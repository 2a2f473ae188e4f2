package domain

// Operation names a lifecycle operation that moves a ticket's status.
type Operation string

const (
	OpClaim     Operation = "claim"
	OpTransfer  Operation = "transfer"
	OpRelease   Operation = "release"
	OpSolve     Operation = "solve"
	OpResume    Operation = "resume"
	OpConfirm   Operation = "confirm"
	OpAutoClose Operation = "auto_close"
	OpReopen    Operation = "reopen"
)

type transitionRule struct {
	from []TicketStatus
	to   TicketStatus
}

// lifecycle is the ticket state machine. Stores enforce from as the status
// guard of each operation's conditional write.
var lifecycle = map[Operation]transitionRule{
	OpClaim:     {from: []TicketStatus{TicketStatusOpen, TicketStatusInProgress}, to: TicketStatusInProgress},
	OpTransfer:  {from: []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusAwaitingUser}, to: TicketStatusInProgress},
	OpRelease:   {from: []TicketStatus{TicketStatusInProgress, TicketStatusAwaitingUser}, to: TicketStatusOpen},
	OpSolve:     {from: []TicketStatus{TicketStatusInProgress, TicketStatusAwaitingUser}, to: TicketStatusAwaitingUser},
	OpResume:    {from: []TicketStatus{TicketStatusAwaitingUser}, to: TicketStatusInProgress},
	OpConfirm:   {from: []TicketStatus{TicketStatusAwaitingUser}, to: TicketStatusClosed},
	OpAutoClose: {from: []TicketStatus{TicketStatusAwaitingUser}, to: TicketStatusClosed},
	OpReopen:    {from: []TicketStatus{TicketStatusAwaitingUser, TicketStatusClosed}, to: TicketStatusOpen},
}

// SourcesOf returns the statuses op may start from. Unknown operations
// have none.
func SourcesOf(op Operation) []TicketStatus {
	rule := lifecycle[op]
	out := make([]TicketStatus, len(rule.from))
	copy(out, rule.from)
	return out
}

// AllowedFrom reports whether op may start from status.
func (op Operation) AllowedFrom(status TicketStatus) bool {
	for _, from := range lifecycle[op].from {
		if from == status {
			return true
		}
	}
	return false
}

// TargetOf returns the status op leaves the ticket in.
func TargetOf(op Operation) TicketStatus {
	return lifecycle[op].to
}
