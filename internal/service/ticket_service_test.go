package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/catalog"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

func validInput() CreateTicketInput {
	return CreateTicketInput{
		Title:       "VPN drops every hour",
		Description: "The VPN client disconnects roughly every sixty minutes.",
		Category:    "network",
		Priority:    domain.TicketPriorityHigh,
	}
}

func TestCreate_StoresOpenTicketWithCreationEntry(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	ticket, err := h.svc.Create(ctx, requester, validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.Assignee)
	assert.Equal(t, int64(1), ticket.Number)
	require.Len(t, ticket.History, 1)
	assert.Equal(t, domain.HistoryCreation, ticket.History[0].Type)
	assert.Equal(t, requester.ID, ticket.History[0].By.ID)

	assert.True(t, hasType(h.notificationsFor(t, admin), domain.NotificationNewTicketInQueue))
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t, false)
	h.catalog.SetActive(catalog.KindCategory, "network", false)

	cases := []struct {
		name   string
		modify func(*CreateTicketInput)
	}{
		{"short title", func(in *CreateTicketInput) { in.Title = "VPN" }},
		{"long title", func(in *CreateTicketInput) { in.Title = strings.Repeat("x", 201) }},
		{"short description", func(in *CreateTicketInput) { in.Description = "broken" }},
		{"long description", func(in *CreateTicketInput) { in.Description = strings.Repeat("y", 5001) }},
		{"inactive category", func(in *CreateTicketInput) {}},
		{"unknown priority", func(in *CreateTicketInput) { in.Category = "software"; in.Priority = "urgent" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.modify(&in)
			_, err := h.svc.Create(context.Background(), requester, in)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestCreate_ConcurrentNumbersAreUnique(t *testing.T) {
	h := newHarness(t, false)
	const n = 64

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[int64]struct{}, n)
	)
	in := validInput()
	in.Category = "software"
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := h.svc.Create(context.Background(), requester, in)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[ticket.Number] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, numbers, n)
}

func TestClaim_ConcurrentTechniciansExactlyOneWins(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		ticket := h.seed(t, domain.TicketStatusOpen, nil)

		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, tech := range []domain.Person{techA, techB} {
			wg.Add(1)
			go func(i int, tech domain.Person) {
				defer wg.Done()
				<-start
				_, errs[i] = h.svc.Claim(ctx, ticket.ID, tech)
			}(i, tech)
		}
		close(start)
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			assert.True(t, apperrors.IsConflict(err), "got %v", err)
		}
		assert.Equal(t, 1, successes)

		stored := h.reload(t, ticket.ID)
		assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
		assert.Equal(t, 1, countHistory(stored, domain.HistoryAssignment))
	}
}

func TestClaim_RequiresStaff(t *testing.T) {
	h := newHarness(t, false)
	ticket := h.seed(t, domain.TicketStatusOpen, nil)

	_, err := h.svc.Claim(context.Background(), ticket.ID, requester)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestClaim_UnknownTicket(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.svc.Claim(context.Background(), "missing", techA)
	assert.True(t, apperrors.IsNotFound(err))
}

// Every operation is tried from every status. Rejections must leave the
// ticket untouched; successes must follow a state machine edge.
func TestLifecycle_OperationsFromEveryStatus(t *testing.T) {
	type operation struct {
		name    string
		op      domain.Operation
		allowed []domain.TicketStatus
		run     func(h *harness, id string) (*domain.Ticket, error)
	}
	ctx := context.Background()
	ops := []operation{
		{
			name:    "claim",
			op:      domain.OpClaim,
			allowed: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				return h.svc.Claim(ctx, id, techA)
			},
		},
		{
			name:    "reassign",
			op:      domain.OpTransfer,
			allowed: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusAwaitingUser},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				return h.svc.Reassign(ctx, id, admin, &techB)
			},
		},
		{
			name:    "release",
			op:      domain.OpRelease,
			allowed: []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusAwaitingUser},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				return h.svc.Reassign(ctx, id, admin, nil)
			},
		},
		{
			name:    "message",
			allowed: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusAwaitingUser},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				return h.svc.AddInteraction(ctx, id, requester, InteractionInput{Kind: InteractionMessage, Text: "any news?"})
			},
		},
		{
			name:    "solution",
			op:      domain.OpSolve,
			allowed: []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusAwaitingUser},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				return h.svc.AddInteraction(ctx, id, techA, InteractionInput{Kind: InteractionSolution, Text: "Replaced the toner."})
			},
		},
		{
			name:    "confirm",
			op:      domain.OpConfirm,
			allowed: []domain.TicketStatus{domain.TicketStatusAwaitingUser},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				return h.svc.ConfirmSolution(ctx, id, requester, "")
			},
		},
		{
			name:    "reopen",
			op:      domain.OpReopen,
			allowed: []domain.TicketStatus{domain.TicketStatusAwaitingUser, domain.TicketStatusClosed},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				return h.svc.Reopen(ctx, id, requester, "still jamming after the fix")
			},
		},
		{
			name:    "edit",
			allowed: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusAwaitingUser},
			run: func(h *harness, id string) (*domain.Ticket, error) {
				title := "Printer on floor 2 jams"
				return h.svc.Edit(ctx, id, requester, EditTicketInput{Title: &title})
			},
		},
	}

	for _, op := range ops {
		if op.op != "" {
			require.ElementsMatch(t, op.allowed, domain.SourcesOf(op.op), op.name)
		}
		for _, from := range domain.AllStatuses {
			t.Run(op.name+"/"+string(from), func(t *testing.T) {
				h := newHarness(t, false, staffMember(techA), staffMember(techB), staffMember(admin))
				var assignee *domain.Person
				if from != domain.TicketStatusOpen {
					a := techA
					assignee = &a
				}
				seeded := h.seed(t, from, assignee)

				result, err := op.run(h, seeded.ID)
				stored := h.reload(t, seeded.ID)

				if containsStatus(op.allowed, from) {
					require.NoError(t, err)
					require.NotNil(t, result)
					if op.op != "" {
						assert.Equal(t, domain.TargetOf(op.op), stored.Status)
					} else {
						assert.Equal(t, from, stored.Status)
					}
					assert.Len(t, stored.History, len(seeded.History)+1)
					if stored.Status == domain.TicketStatusOpen {
						assert.Nil(t, stored.Assignee)
					} else {
						assert.NotNil(t, stored.Assignee)
					}
					return
				}
				require.Error(t, err)
				assert.True(t, apperrors.IsConflict(err) || apperrors.IsInvalidState(err), "got %v", err)
				assert.Equal(t, from, stored.Status)
				assert.Len(t, stored.History, len(seeded.History))
			})
		}
	}
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, c := range list {
		if c == s {
			return true
		}
	}
	return false
}

func TestAutoCloseStale_IsIdempotent(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	old := h.clock.Now().Add(-6 * 24 * time.Hour)
	recent := h.clock.Now().Add(-24 * time.Hour)
	setSince := func(at time.Time) func(*domain.Ticket) {
		return func(t *domain.Ticket) { t.AwaitingUserSince = &at }
	}

	stale1 := h.seed(t, domain.TicketStatusAwaitingUser, &techA, setSince(old))
	stale2 := h.seed(t, domain.TicketStatusAwaitingUser, &techB, setSince(old))
	fresh := h.seed(t, domain.TicketStatusAwaitingUser, &techA, setSince(recent))
	busy := h.seed(t, domain.TicketStatusInProgress, &techA)

	closed, err := h.svc.AutoCloseStale(ctx, 5*24*time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	closed, err = h.svc.AutoCloseStale(ctx, 5*24*time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	for _, id := range []string{stale1.ID, stale2.ID} {
		stored := h.reload(t, id)
		assert.Equal(t, domain.TicketStatusClosed, stored.Status)
		assert.True(t, stored.AutoClosed)
		assert.NotNil(t, stored.ClosedAt)
		assert.Equal(t, 1, countHistory(stored, domain.HistoryStatus))
		assert.Equal(t, domain.SystemActor.ID, stored.History[len(stored.History)-1].By.ID)
	}
	assert.Equal(t, domain.TicketStatusAwaitingUser, h.reload(t, fresh.ID).Status)
	assert.Equal(t, domain.TicketStatusInProgress, h.reload(t, busy.ID).Status)
	assert.True(t, hasType(h.notificationsFor(t, requester), domain.NotificationStatusChanged))
}

func TestAutoCloseStale_ConcurrentSweepsDoNotDoubleClose(t *testing.T) {
	h := newHarness(t, false)
	old := h.clock.Now().Add(-10 * 24 * time.Hour)
	for i := 0; i < 30; i++ {
		h.seed(t, domain.TicketStatusAwaitingUser, &techA, func(t *domain.Ticket) { t.AwaitingUserSince = &old })
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := h.svc.AutoCloseStale(context.Background(), 5*24*time.Hour, 7)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 30, total)
}

func TestEndToEnd_SolutionConfirmedNotifiesWatchers(t *testing.T) {
	h := newHarness(t, false, staffMember(techA), staffMember(techB))
	ctx := context.Background()

	ticket, err := h.svc.Create(ctx, requester, validInput())
	require.NoError(t, err)
	_, err = h.svc.Watch(ctx, ticket.ID, techB)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	_, err = h.svc.Claim(ctx, ticket.ID, techA)
	require.NoError(t, err)
	assert.True(t, hasType(h.notificationsFor(t, requester), domain.NotificationStatusChanged))

	h.clock.Advance(time.Minute)
	solved, err := h.svc.AddInteraction(ctx, ticket.ID, techA, InteractionInput{
		Kind: InteractionSolution,
		Text: "Reinstalled the VPN client with the new profile.",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAwaitingUser, solved.Status)
	require.NotNil(t, solved.AwaitingUserSince)
	assert.Equal(t, techA.ID, solved.SolvedBy.ID)
	assert.True(t, hasType(h.notificationsFor(t, requester), domain.NotificationNewSolution))

	h.clock.Advance(time.Minute)
	closed, err := h.svc.ConfirmSolution(ctx, ticket.ID, requester, "works now")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Nil(t, closed.AwaitingUserSince)

	assert.True(t, hasType(h.notificationsFor(t, techB), domain.NotificationStatusChanged))
	assert.True(t, hasType(h.notificationsFor(t, techA), domain.NotificationStatusChanged))
}

func TestEndToEnd_CriticalTicketGoesToLeastLoadedTechnician(t *testing.T) {
	t1 := domain.Person{ID: "t-1", Name: "One", Login: "one", Role: domain.RoleTechnician}
	t2 := domain.Person{ID: "t-2", Name: "Two", Login: "two", Role: domain.RoleTechnician}
	t3 := domain.Person{ID: "t-3", Name: "Three", Login: "three", Role: domain.RoleTechnician}
	h := newHarness(t, true, staffMember(t1), staffMember(t2), staffMember(t3))

	load := func(p domain.Person, n, critical int) {
		for i := 0; i < n; i++ {
			owner := p
			h.seed(t, domain.TicketStatusInProgress, &owner, func(tk *domain.Ticket) {
				if i < critical {
					tk.Priority = domain.TicketPriorityCritical
				}
			})
		}
	}
	load(t1, 5, 1)
	load(t2, 1, 0)
	load(t3, 3, 0)

	in := validInput()
	in.Priority = domain.TicketPriorityCritical
	ticket, err := h.svc.Create(context.Background(), requester, in)
	require.NoError(t, err)
	h.svc.Wait()

	stored := h.reload(t, ticket.ID)
	require.NotNil(t, stored.Assignee)
	assert.Equal(t, t2.ID, stored.Assignee.ID)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	last := stored.History[len(stored.History)-1]
	assert.Equal(t, domain.HistoryAssignment, last.Type)
	assert.Equal(t, domain.SystemActor.ID, last.By.ID)
	assert.True(t, hasType(h.notificationsFor(t, t2), domain.NotificationAssigned))
}

func TestReassign_ToNullReturnsTicketToQueue(t *testing.T) {
	h := newHarness(t, false, staffMember(techA))
	ticket := h.seed(t, domain.TicketStatusAwaitingUser, &techA)

	released, err := h.svc.Reassign(context.Background(), ticket.ID, admin, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, released.Status)
	assert.Nil(t, released.Assignee)
	assert.Nil(t, released.AwaitingUserSince)
	last := released.History[len(released.History)-1]
	assert.Equal(t, domain.HistoryTransfer, last.Type)
	assert.Equal(t, techA.ID, last.Meta["from"])
	assert.Equal(t, "", last.Meta["to"])
}

func TestReassign_ReleasingQueuedTicketIsRejected(t *testing.T) {
	h := newHarness(t, false, staffMember(techA))
	ticket := h.seed(t, domain.TicketStatusOpen, nil)

	_, err := h.svc.Reassign(context.Background(), ticket.ID, admin, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err), "got %v", err)

	stored := h.reload(t, ticket.ID)
	assert.Len(t, stored.History, len(ticket.History))
	assert.Empty(t, h.notificationsFor(t, admin))
}

func TestReassign_RejectsBlockedStaff(t *testing.T) {
	blocked := domain.StaffMember{Person: techB, Blocked: true}
	h := newHarness(t, false, staffMember(techA), blocked)
	ticket := h.seed(t, domain.TicketStatusInProgress, &techA)

	_, err := h.svc.Reassign(context.Background(), ticket.ID, admin, &techB)
	assert.True(t, apperrors.IsValidation(err))
}

func TestReopen_ClearsOwnerAndAutoClose(t *testing.T) {
	h := newHarness(t, false)
	ticket := h.seed(t, domain.TicketStatusClosed, &techA, func(t *domain.Ticket) {
		t.AutoClosed = true
		t.AutoCloseReason = "no response"
	})

	_, err := h.svc.Reopen(context.Background(), ticket.ID, requester, "too short")
	assert.True(t, apperrors.IsValidation(err))

	reopened, err := h.svc.Reopen(context.Background(), ticket.ID, requester, "the printer jams again every morning")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)
	assert.Nil(t, reopened.Assignee)
	assert.Nil(t, reopened.ClosedAt)
	assert.False(t, reopened.AutoClosed)
	assert.True(t, hasType(h.notificationsFor(t, techA), domain.NotificationStatusChanged))
}

func TestAddInteraction_Validation(t *testing.T) {
	h := newHarness(t, false)
	ticket := h.seed(t, domain.TicketStatusInProgress, &techA)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor domain.Person
		in    InteractionInput
		check func(error) bool
	}{
		{"empty", requester, InteractionInput{Kind: InteractionMessage, Text: "  "}, apperrors.IsValidation},
		{"unknown kind", techA, InteractionInput{Kind: "shout", Text: "hi"}, apperrors.IsValidation},
		{"too long", requester, InteractionInput{Kind: InteractionMessage, Text: strings.Repeat("a", 10001)}, apperrors.IsValidation},
		{"requester solution", requester, InteractionInput{Kind: InteractionSolution, Text: "fixed it"}, func(err error) bool {
			return apperrors.IsCode(err, apperrors.CodeForbidden)
		}},
		{"escaping path", techA, InteractionInput{Kind: InteractionMessage, Attachments: []AttachmentInput{
			{StoredName: "a.png", Size: 10, RelativePath: "../../etc/passwd"},
		}}, apperrors.IsValidation},
		{"absolute path", techA, InteractionInput{Kind: InteractionMessage, Attachments: []AttachmentInput{
			{StoredName: "a.png", Size: 10, RelativePath: "/var/data/a.png"},
		}}, apperrors.IsValidation},
		{"empty attachment", techA, InteractionInput{Kind: InteractionMessage, Attachments: []AttachmentInput{
			{StoredName: "a.png", Size: 0, RelativePath: "2026/03/a.png"},
		}}, apperrors.IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.AddInteraction(ctx, ticket.ID, tc.actor, tc.in)
			require.Error(t, err)
			assert.True(t, tc.check(err), "got %v", err)
		})
	}
}

func TestAddInteraction_SanitizesAttachmentsAndHidesInternalNotes(t *testing.T) {
	h := newHarness(t, false)
	ticket := h.seed(t, domain.TicketStatusInProgress, &techA)
	ctx := context.Background()

	withFile, err := h.svc.AddInteraction(ctx, ticket.ID, requester, InteractionInput{
		Kind: InteractionMessage,
		Attachments: []AttachmentInput{{
			OriginalName: `C:\Users\ana\photo.jpg`,
			StoredName:   "uploads/abc123.jpg",
			MimeType:     "image/jpeg",
			Size:         2048,
			RelativePath: "2026/03/./abc123.jpg",
		}},
	})
	require.NoError(t, err)
	att := withFile.History[len(withFile.History)-1].Attachments
	require.Len(t, att, 1)
	assert.Equal(t, "photo.jpg", att[0].OriginalName)
	assert.Equal(t, "abc123.jpg", att[0].StoredName)
	assert.Equal(t, "2026/03/abc123.jpg", att[0].RelativePath)
	assert.NotEmpty(t, att[0].ID)

	_, err = h.svc.AddInteraction(ctx, ticket.ID, techA, InteractionInput{Kind: InteractionInternalNote, Text: "user is on old firmware"})
	require.NoError(t, err)

	asRequester, err := h.svc.Get(ctx, requester, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, countHistory(asRequester, domain.HistoryInternalNote))

	asStaff, err := h.svc.Get(ctx, techB, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, countHistory(asStaff, domain.HistoryInternalNote))

	assert.False(t, hasType(h.notificationsFor(t, requester), domain.NotificationNewMessage))
}

func TestAddInteraction_StaffFollowUpReturnsToInProgress(t *testing.T) {
	h := newHarness(t, false)
	ticket := h.seed(t, domain.TicketStatusAwaitingUser, &techA)
	inProgress := domain.TicketStatusInProgress

	updated, err := h.svc.AddInteraction(context.Background(), ticket.ID, techA, InteractionInput{
		Kind:         InteractionMessage,
		Text:         "Found another cause, looking into it.",
		TransitionTo: &inProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Nil(t, updated.AwaitingUserSince)
}

func TestSupportHelpersAndWatchers(t *testing.T) {
	h := newHarness(t, false, staffMember(techA), staffMember(techB))
	ticket := h.seed(t, domain.TicketStatusInProgress, &techA)
	ctx := context.Background()

	_, err := h.svc.AddSupportHelper(ctx, ticket.ID, techA, techA.ID)
	assert.True(t, apperrors.IsConflict(err), "assignee cannot be a helper")

	withHelper, err := h.svc.AddSupportHelper(ctx, ticket.ID, techA, techB.ID)
	require.NoError(t, err)
	assert.True(t, withHelper.HasHelper(techB.ID))

	_, err = h.svc.AddSupportHelper(ctx, ticket.ID, techA, techB.ID)
	assert.True(t, apperrors.IsConflict(err))

	_, err = h.svc.AddInteraction(ctx, ticket.ID, requester, InteractionInput{Kind: InteractionMessage, Text: "any update?"})
	require.NoError(t, err)
	assert.True(t, hasType(h.notificationsFor(t, techB), domain.NotificationNewMessage))

	before := h.reload(t, ticket.ID)
	_, err = h.svc.Watch(ctx, ticket.ID, admin)
	require.NoError(t, err)
	_, err = h.svc.Watch(ctx, ticket.ID, admin)
	require.NoError(t, err)
	watched := h.reload(t, ticket.ID)
	assert.Len(t, watched.NotificationSubscribers, 1)
	assert.Equal(t, before.UpdatedAt, watched.UpdatedAt)
	assert.Len(t, watched.History, len(before.History))

	_, err = h.svc.Unwatch(ctx, ticket.ID, admin)
	require.NoError(t, err)
	assert.Empty(t, h.reload(t, ticket.ID).NotificationSubscribers)
}

func TestDelete_CascadesNotifications(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	ticket, err := h.svc.Create(ctx, requester, validInput())
	require.NoError(t, err)
	require.NotEmpty(t, h.notificationsFor(t, admin))

	assert.True(t, apperrors.IsCode(h.svc.Delete(ctx, ticket.ID, techA), apperrors.CodeForbidden))
	require.NoError(t, h.svc.Delete(ctx, ticket.ID, admin))

	assert.Empty(t, h.notificationsFor(t, admin))
	assert.True(t, apperrors.IsNotFound(h.svc.Delete(ctx, ticket.ID, admin)))
}

func TestChangesSince_ReturnsOnlyNewerHistory(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	ticket := h.seed(t, domain.TicketStatusInProgress, &techA)

	first, err := h.svc.ChangesSince(ctx, requester, ticket.ID, nil)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Len(t, first.History, 1)

	h.clock.Advance(time.Second)
	idle, err := h.svc.ChangesSince(ctx, requester, ticket.ID, &first.Cursor)
	require.NoError(t, err)
	assert.False(t, idle.Changed)
	assert.Empty(t, idle.History)

	h.clock.Advance(time.Second)
	_, err = h.svc.AddInteraction(ctx, ticket.ID, techA, InteractionInput{Kind: InteractionInternalNote, Text: "checking logs"})
	require.NoError(t, err)
	_, err = h.svc.AddInteraction(ctx, ticket.ID, techA, InteractionInput{Kind: InteractionMessage, Text: "Can you restart?"})
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	next, err := h.svc.ChangesSince(ctx, requester, ticket.ID, &idle.Cursor)
	require.NoError(t, err)
	assert.True(t, next.Changed)
	require.Len(t, next.History, 1)
	assert.Equal(t, domain.HistoryMessage, next.History[0].Type)

	_, err = h.svc.ChangesSince(ctx, domain.Person{ID: "u-2", Role: domain.RoleRequester}, ticket.ID, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestDashboardSince_ScopesByRole(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.seed(t, domain.TicketStatusOpen, nil)
	h.seed(t, domain.TicketStatusInProgress, &techA)
	h.seed(t, domain.TicketStatusOpen, nil, func(t *domain.Ticket) {
		t.Creator = domain.Person{ID: "u-2", Name: "Eva", Login: "eva", Role: domain.RoleRequester}
	})

	staffView, err := h.svc.DashboardSince(ctx, techA, nil, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), staffView.ByStatus[domain.TicketStatusOpen])
	assert.Equal(t, int64(2), staffView.OpenUnassigned)
	assert.Len(t, staffView.Updated, 3)

	own, err := h.svc.DashboardSince(ctx, requester, nil, 50)
	require.NoError(t, err)
	assert.Nil(t, own.ByStatus)
	assert.Len(t, own.Updated, 2)
}
