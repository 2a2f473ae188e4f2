package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// DefaultAdminPenalty keeps admins out of routine work unless nobody else
// is free.
const DefaultAdminPenalty = 150

// AssignmentOutcome reports what an assignment attempt did.
type AssignmentOutcome string

const (
	OutcomeAssigned     AssignmentOutcome = "assigned"
	OutcomeAlreadyTaken AssignmentOutcome = "already_taken"
	OutcomeNoCandidates AssignmentOutcome = "no_candidates"
	OutcomeNotEligible  AssignmentOutcome = "not_eligible"
)

// AssignmentResult is returned by Assign. NoCandidates is a result, not an
// error: the ticket simply stays in the queue.
type AssignmentResult struct {
	Outcome  AssignmentOutcome
	Assignee *domain.Person
	Ticket   *domain.Ticket
	Ranking  []Candidate
}

// Candidate is one scored staff member.
type Candidate struct {
	Staff    domain.StaffMember
	Workload repository.Workload
	Score    int
}

// Claimer performs the guarded claim the engine ends with.
type Claimer interface {
	ClaimAs(ctx context.Context, ticketID string, assignee, actor domain.Person) (*domain.Ticket, error)
}

// AssignmentEngine picks an owner for queued tickets.
type AssignmentEngine struct {
	staff        repository.StaffRepository
	tickets      repository.TicketRepository
	claimer      Claimer
	adminPenalty int
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// AssignmentDependencies bundles collaborators for the engine.
type AssignmentDependencies struct {
	StaffRepo    repository.StaffRepository
	TicketRepo   repository.TicketRepository
	Claimer      Claimer
	AdminPenalty int
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// NewAssignmentEngine creates the engine.
func NewAssignmentEngine(deps AssignmentDependencies) *AssignmentEngine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.AdminPenalty <= 0 {
		deps.AdminPenalty = DefaultAdminPenalty
	}
	return &AssignmentEngine{
		staff:        deps.StaffRepo,
		tickets:      deps.TicketRepo,
		claimer:      deps.Claimer,
		adminPenalty: deps.AdminPenalty,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
	}
}

// Score is lower-is-better.
func Score(member domain.StaffMember, load repository.Workload, priority domain.TicketPriority, adminPenalty int) int {
	score := load.ActiveLoad*100 + load.CriticalActive*25 - load.CategoryExperience*5
	if member.Role == domain.RoleAdmin && !priority.Urgent() {
		score += adminPenalty
	}
	return score
}

// Rank scores members and orders them best first. Ties break on active
// load, then critical load, then login.
func Rank(members []domain.StaffMember, loads map[string]repository.Workload, priority domain.TicketPriority, adminPenalty int) []Candidate {
	ranked := make([]Candidate, 0, len(members))
	for _, m := range members {
		if !m.Eligible() {
			continue
		}
		w := loads[m.ID]
		ranked = append(ranked, Candidate{Staff: m, Workload: w, Score: Score(m, w, priority, adminPenalty)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.Workload.ActiveLoad != b.Workload.ActiveLoad {
			return a.Workload.ActiveLoad < b.Workload.ActiveLoad
		}
		if a.Workload.CriticalActive != b.Workload.CriticalActive {
			return a.Workload.CriticalActive < b.Workload.CriticalActive
		}
		return a.Staff.Login < b.Staff.Login
	})
	return ranked
}

// Assign scores eligible staff and claims the ticket for the best one.
// Scoring reads counts only; the single write is the guarded claim.
func (e *AssignmentEngine) Assign(ctx context.Context, ticket *domain.Ticket) (AssignmentResult, error) {
	if ticket.Status != domain.TicketStatusOpen || ticket.Assignee != nil {
		e.metrics.RecordAssignment(string(OutcomeNotEligible))
		return AssignmentResult{Outcome: OutcomeNotEligible, Ticket: ticket}, nil
	}

	members, err := e.staff.List(ctx, repository.EligibleFilter())
	if err != nil {
		return AssignmentResult{}, apperrors.MapError(err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	loads, err := e.tickets.WorkloadFor(ctx, ids, ticket.Category)
	if err != nil {
		return AssignmentResult{}, apperrors.MapError(err)
	}

	ranking := Rank(members, loads, ticket.Priority, e.adminPenalty)
	if len(ranking) == 0 {
		e.metrics.RecordAssignment(string(OutcomeNoCandidates))
		e.logger.Info("no assignment candidates", zap.String("ticket_id", ticket.ID))
		return AssignmentResult{Outcome: OutcomeNoCandidates, Ticket: ticket}, nil
	}

	top := ranking[0].Staff.Person
	claimed, err := e.claimer.ClaimAs(ctx, ticket.ID, top, domain.SystemActor)
	if err != nil {
		if apperrors.IsConflict(err) {
			e.metrics.RecordAssignment(string(OutcomeAlreadyTaken))
			e.logger.Info("ticket taken before auto-assignment", zap.String("ticket_id", ticket.ID))
			return AssignmentResult{Outcome: OutcomeAlreadyTaken, Ranking: ranking}, nil
		}
		return AssignmentResult{}, err
	}

	e.metrics.RecordAssignment(string(OutcomeAssigned))
	e.logger.Info("ticket auto-assigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("assignee", top.ID),
		zap.Int("score", ranking[0].Score))
	return AssignmentResult{Outcome: OutcomeAssigned, Assignee: &top, Ticket: claimed, Ranking: ranking}, nil
}
