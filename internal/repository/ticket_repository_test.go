package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestBuildTicketUpdate_ClaimGuard(t *testing.T) {
	status := domain.TicketStatusInProgress
	assignee := domain.Person{ID: "t-1", Name: "Bruno"}
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	query, args, err := buildTicketUpdate("tk-1",
		TicketGuard{
			Statuses:       []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
			AssigneeNullOr: "t-1",
		},
		TicketMutation{
			Status:      &status,
			SetAssignee: true,
			Assignee:    &assignee,
			Append:      &domain.HistoryEntry{ID: "h-1", Type: domain.HistoryAssignment, At: at, By: assignee},
			At:          at,
		})
	require.NoError(t, err)

	assert.Contains(t, query, "UPDATE tickets SET status=$2")
	assert.Contains(t, query, "assignee_id=$4")
	assert.Contains(t, query, "history = history || jsonb_build_array(jsonb_set($5::jsonb, '{at}', to_jsonb(GREATEST($6::timestamptz, updated_at + interval '1 microsecond'))))")
	assert.Contains(t, query, "updated_at=GREATEST($6::timestamptz, updated_at + interval '1 microsecond')")
	assert.Contains(t, query, "WHERE id=$1 AND status = ANY($7) AND (assignee_id IS NULL OR assignee_id=$8)")
	assert.Contains(t, query, "RETURNING ")
	require.Len(t, args, 8)
	assert.Equal(t, "tk-1", args[0])
	assert.Equal(t, "in_progress", args[1])
	assert.Equal(t, []string{"open", "in_progress"}, args[6])
	assert.Equal(t, "t-1", args[7])
}

func TestBuildTicketUpdate_AssigneeIs(t *testing.T) {
	status := domain.TicketStatusOpen
	unassigned := ""
	query, args, err := buildTicketUpdate("tk-1",
		TicketGuard{AssigneeIs: &unassigned},
		TicketMutation{Status: &status, SetAssignee: true})
	require.NoError(t, err)
	assert.Contains(t, query, "assignee=NULL, assignee_id=NULL")
	assert.Contains(t, query, "WHERE id=$1 AND assignee_id IS NULL")
	assert.Len(t, args, 2)

	owner := "t-9"
	query, args, err = buildTicketUpdate("tk-1",
		TicketGuard{AssigneeIs: &owner},
		TicketMutation{Status: &status})
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE id=$1 AND assignee_id=$3")
	assert.Equal(t, "t-9", args[2])
}

func TestBuildTicketUpdate_AutoCloseGuard(t *testing.T) {
	closed := domain.TicketStatusClosed
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reason := "no answer"
	query, args, err := buildTicketUpdate("tk-1",
		TicketGuard{Statuses: []domain.TicketStatus{domain.TicketStatusAwaitingUser}, AwaitingBefore: &cutoff},
		TicketMutation{Status: &closed, SetClosedAt: true, ClosedAt: &cutoff, AutoCloseReason: &reason})
	require.NoError(t, err)
	assert.Contains(t, query, "auto_closed=TRUE")
	assert.Contains(t, query, "awaiting_user_since < $")
	assert.Equal(t, cutoff, args[len(args)-1])
}

func TestBuildTicketUpdate_HelperAbsent(t *testing.T) {
	helper := domain.SupportHelper{Person: domain.Person{ID: "t-2"}}
	query, _, err := buildTicketUpdate("tk-1",
		TicketGuard{HelperAbsent: "t-2"},
		TicketMutation{AddHelper: &helper})
	require.NoError(t, err)
	assert.Contains(t, query, "NOT (support_helpers @>")
	assert.Contains(t, query, "assignee_id <> ")
}

func TestBuildTicketUpdate_EmptyMutation(t *testing.T) {
	_, _, err := buildTicketUpdate("tk-1", TicketGuard{}, TicketMutation{})
	assert.Error(t, err)
}

func TestTicketGuard_Matches(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		Status:            domain.TicketStatusAwaitingUser,
		Assignee:          &domain.Person{ID: "t-1"},
		SupportHelpers:    []domain.SupportHelper{{Person: domain.Person{ID: "t-2"}}},
		AwaitingUserSince: &since,
	}
	owner, other, none := "t-1", "t-3", ""
	later, earlier := since.Add(time.Hour), since.Add(-time.Hour)

	cases := []struct {
		name  string
		guard TicketGuard
		want  bool
	}{
		{"empty guard", TicketGuard{}, true},
		{"status match", TicketGuard{Statuses: []domain.TicketStatus{domain.TicketStatusAwaitingUser}}, true},
		{"status miss", TicketGuard{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}}, false},
		{"null-or owner", TicketGuard{AssigneeNullOr: "t-1"}, true},
		{"null-or other", TicketGuard{AssigneeNullOr: "t-3"}, false},
		{"assignee is owner", TicketGuard{AssigneeIs: &owner}, true},
		{"assignee is other", TicketGuard{AssigneeIs: &other}, false},
		{"assignee is none", TicketGuard{AssigneeIs: &none}, false},
		{"helper present", TicketGuard{HelperAbsent: "t-2"}, false},
		{"helper is assignee", TicketGuard{HelperAbsent: "t-1"}, false},
		{"helper absent", TicketGuard{HelperAbsent: "t-3"}, true},
		{"awaiting older than cutoff", TicketGuard{AwaitingBefore: &later}, true},
		{"awaiting newer than cutoff", TicketGuard{AwaitingBefore: &earlier}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.guard.Matches(ticket))
		})
	}
}

func TestTicketMutation_StampsFollowCommitOrder(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{ID: "tk-1", UpdatedAt: base.Add(time.Minute)}

	// Stamped before the previous writer committed.
	late := base.Add(time.Second)
	TicketMutation{
		Append: &domain.HistoryEntry{ID: "h-1", Type: domain.HistoryMessage, At: late},
		At:     late,
	}.ApplyTo(ticket)

	want := base.Add(time.Minute + time.Microsecond)
	assert.Equal(t, want, ticket.UpdatedAt)
	require.Len(t, ticket.History, 1)
	assert.Equal(t, want, ticket.History[0].At)

	fresh := base.Add(time.Hour)
	TicketMutation{
		Append: &domain.HistoryEntry{ID: "h-2", Type: domain.HistoryMessage, At: fresh},
		At:     fresh,
	}.ApplyTo(ticket)
	assert.Equal(t, fresh, ticket.UpdatedAt)
	assert.Equal(t, fresh, ticket.History[1].At)
}
