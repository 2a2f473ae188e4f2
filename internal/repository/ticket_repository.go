package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("repository: not found")
	// ErrGuardRejected is returned when the document exists but the guard
	// predicate did not hold at write time.
	ErrGuardRejected = errors.New("repository: guard rejected update")
	// ErrDuplicateNumber surfaces a ticket number collision.
	ErrDuplicateNumber = errors.New("repository: duplicate ticket number")
)

// TicketFilter captures listing parameters for polling and dashboards.
type TicketFilter struct {
	// UpdatedAfter and AfterID form a keyset position: rows updated after
	// UpdatedAfter, or at it with an id greater than AfterID.
	UpdatedAfter *time.Time
	AfterID      string
	CreatorID    *string
	AssigneeID   *string
	Statuses     []domain.TicketStatus
	Limit        int
}

// Workload summarizes a technician's current and past tickets.
type Workload struct {
	ActiveLoad         int
	CriticalActive     int
	CategoryExperience int
}

// StatusCounts aggregates dashboard KPIs.
type StatusCounts struct {
	ByStatus       map[domain.TicketStatus]int64
	OpenUnassigned int64
}

// TicketRepository encapsulates ticket persistence. Update is the only way
// to change a stored ticket: one atomic conditional write per call.
type TicketRepository interface {
	Insert(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Update(ctx context.Context, id string, guard TicketGuard, mutation TicketMutation) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	ListStaleAwaiting(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context) (StatusCounts, error)
	WorkloadFor(ctx context.Context, staffIDs []string, category string) (map[string]Workload, error)
}

// IsActive reports whether the status counts toward a technician's load.
func IsActive(status domain.TicketStatus) bool {
	return status == domain.TicketStatusInProgress || status == domain.TicketStatusAwaitingUser
}

// IsHandled reports whether the status counts as category experience.
func IsHandled(status domain.TicketStatus) bool {
	return status == domain.TicketStatusAwaitingUser || status == domain.TicketStatusClosed
}

const ticketColumns = `id, number, title, description, category, priority, status, creator, assignee,
       support_helpers, notification_subscribers, history, solution, solved_at, solved_by,
       awaiting_user_since, closed_at, auto_closed, auto_close_reason, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Insert(ctx context.Context, ticket *domain.Ticket) error {
	creator, err := json.Marshal(ticket.Creator)
	if err != nil {
		return err
	}
	history, err := json.Marshal(ticket.History)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, number, title, description, category, priority, status, creator, creator_id,
            support_helpers, notification_subscribers, history, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,'[]'::jsonb,'[]'::jsonb,$10::jsonb,$11,$12)`
	_, err = r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.Number,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		string(ticket.Priority),
		string(ticket.Status),
		string(creator),
		ticket.Creator.ID,
		string(history),
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %d", ErrDuplicateNumber, ticket.Number)
	}
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) Update(ctx context.Context, id string, guard TicketGuard, mutation TicketMutation) (*domain.Ticket, error) {
	query, args, err := buildTicketUpdate(id, guard, mutation)
	if err != nil {
		return nil, err
	}
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrGuardRejected
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) ListStaleAwaiting(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status=$1 AND awaiting_user_since < $2
        ORDER BY awaiting_user_since ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, string(domain.TicketStatusAwaitingUser), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UpdatedAfter != nil {
		clauses = append(clauses, keysetClause("updated_at", *filter.UpdatedAfter, filter.AfterID, &args))
	}
	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at ASC, id COLLATE "C" ASC LIMIT %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (StatusCounts, error) {
	const query = `
        SELECT status, COUNT(*), COUNT(*) FILTER (WHERE assignee_id IS NULL)
        FROM tickets GROUP BY status`
	counts := StatusCounts{ByStatus: make(map[domain.TicketStatus]int64, len(domain.AllStatuses))}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return counts, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status     string
			total      int64
			unassigned int64
		)
		if err := rows.Scan(&status, &total, &unassigned); err != nil {
			return counts, err
		}
		counts.ByStatus[domain.TicketStatus(status)] = total
		if domain.TicketStatus(status) == domain.TicketStatusOpen {
			counts.OpenUnassigned = unassigned
		}
	}
	return counts, rows.Err()
}

func (r *ticketRepository) WorkloadFor(ctx context.Context, staffIDs []string, category string) (map[string]Workload, error) {
	result := make(map[string]Workload, len(staffIDs))
	if len(staffIDs) == 0 {
		return result, nil
	}
	const query = `
        SELECT assignee_id,
               COUNT(*) FILTER (WHERE status IN ('in_progress','awaiting_user')),
               COUNT(*) FILTER (WHERE status IN ('in_progress','awaiting_user') AND priority='critical'),
               COUNT(*) FILTER (WHERE category=$2 AND status IN ('awaiting_user','closed'))
        FROM tickets WHERE assignee_id = ANY($1)
        GROUP BY assignee_id`
	rows, err := r.pool.Query(ctx, query, staffIDs, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			w  Workload
		)
		if err := rows.Scan(&id, &w.ActiveLoad, &w.CriticalActive, &w.CategoryExperience); err != nil {
			return nil, err
		}
		result[id] = w
	}
	return result, rows.Err()
}

// buildTicketUpdate renders the guarded single-statement update. The guard
// lands in the WHERE clause so Postgres evaluates it against the row it locks.
func buildTicketUpdate(id string, guard TicketGuard, m TicketMutation) (string, []any, error) {
	args := []any{id}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	sets := []string{}

	if m.Status != nil {
		sets = append(sets, "status="+next(string(*m.Status)))
	}
	if m.SetAssignee {
		if m.Assignee == nil {
			sets = append(sets, "assignee=NULL", "assignee_id=NULL")
		} else {
			raw, err := json.Marshal(m.Assignee)
			if err != nil {
				return "", nil, err
			}
			sets = append(sets, "assignee="+next(string(raw))+"::jsonb", "assignee_id="+next(m.Assignee.ID))
		}
	}
	if m.Title != nil {
		sets = append(sets, "title="+next(*m.Title))
	}
	if m.Description != nil {
		sets = append(sets, "description="+next(*m.Description))
	}
	if m.Category != nil {
		sets = append(sets, "category="+next(*m.Category))
	}
	if m.Priority != nil {
		sets = append(sets, "priority="+next(string(*m.Priority)))
	}
	if m.Solution != nil {
		by, err := json.Marshal(m.Solution.By)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets,
			"solution="+next(m.Solution.Text),
			"solved_at="+next(m.Solution.At),
			"solved_by="+next(string(by))+"::jsonb",
		)
	}
	if m.SetAwaitingSince {
		sets = append(sets, "awaiting_user_since="+next(m.AwaitingSince))
	}
	if m.SetClosedAt {
		sets = append(sets, "closed_at="+next(m.ClosedAt))
	}
	if m.AutoCloseReason != nil {
		sets = append(sets, "auto_closed=TRUE", "auto_close_reason="+next(*m.AutoCloseReason))
	}
	if m.ClearAutoClose {
		sets = append(sets, "auto_closed=FALSE", "auto_close_reason=''")
	}
	if m.AddHelper != nil {
		probe := next(idProbe(m.AddHelper.ID))
		raw, err := json.Marshal([]domain.SupportHelper{*m.AddHelper})
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, fmt.Sprintf(
			"support_helpers = CASE WHEN support_helpers @> %s::jsonb THEN support_helpers ELSE support_helpers || %s::jsonb END",
			probe, next(string(raw))))
	}
	if m.AddSubscriber != nil {
		probe := next(idProbe(m.AddSubscriber.ID))
		raw, err := json.Marshal([]domain.Person{*m.AddSubscriber})
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, fmt.Sprintf(
			"notification_subscribers = CASE WHEN notification_subscribers @> %s::jsonb THEN notification_subscribers ELSE notification_subscribers || %s::jsonb END",
			probe, next(string(raw))))
	}
	if m.RemoveSubscriber != "" {
		sets = append(sets, fmt.Sprintf(
			"notification_subscribers = (SELECT COALESCE(jsonb_agg(e), '[]'::jsonb) FROM jsonb_array_elements(notification_subscribers) e WHERE e->>'id' <> %s)",
			next(m.RemoveSubscriber)))
	}
	if m.Append != nil {
		raw, err := json.Marshal(m.Append)
		if err != nil {
			return "", nil, err
		}
		entry := next(string(raw))
		stamp := fmt.Sprintf("GREATEST(%s::timestamptz, updated_at + interval '1 microsecond')", next(m.At))
		sets = append(sets,
			fmt.Sprintf("history = history || jsonb_build_array(jsonb_set(%s::jsonb, '{at}', to_jsonb(%s)))", entry, stamp),
			"updated_at="+stamp,
		)
	}
	if len(sets) == 0 {
		return "", nil, errors.New("empty ticket mutation")
	}

	clauses := []string{"id=$1"}
	if len(guard.Statuses) > 0 {
		clauses = append(clauses, "status = ANY("+next(statusStrings(guard.Statuses))+")")
	}
	if guard.AssigneeNullOr != "" {
		p := next(guard.AssigneeNullOr)
		clauses = append(clauses, fmt.Sprintf("(assignee_id IS NULL OR assignee_id=%s)", p))
	}
	if guard.AssigneeIs != nil {
		if *guard.AssigneeIs == "" {
			clauses = append(clauses, "assignee_id IS NULL")
		} else {
			clauses = append(clauses, "assignee_id="+next(*guard.AssigneeIs))
		}
	}
	if guard.HelperAbsent != "" {
		probe := next(idProbe(guard.HelperAbsent))
		p := next(guard.HelperAbsent)
		clauses = append(clauses, fmt.Sprintf("NOT (support_helpers @> %s::jsonb) AND (assignee_id IS NULL OR assignee_id <> %s)", probe, p))
	}
	if guard.AwaitingBefore != nil {
		clauses = append(clauses, "awaiting_user_since < "+next(*guard.AwaitingBefore))
	}

	query := fmt.Sprintf("UPDATE tickets SET %s WHERE %s RETURNING %s",
		strings.Join(sets, ", "), strings.Join(clauses, " AND "), ticketColumns)
	return query, args, nil
}

func idProbe(id string) string {
	raw, _ := json.Marshal([]map[string]string{{"id": id}})
	return string(raw)
}

// PastKeyset reports whether a row stamped at with the given id lies after
// the position (since, afterID), matching keysetClause.
func PastKeyset(at time.Time, id string, since time.Time, afterID string) bool {
	if !at.Equal(since) {
		return at.After(since)
	}
	return afterID != "" && id > afterID
}

// keysetClause renders "column after at, ties broken by id". An empty
// afterID means every row at exactly at was already seen.
func keysetClause(column string, at time.Time, afterID string, args *[]any) string {
	*args = append(*args, at)
	ts := len(*args)
	if afterID == "" {
		return fmt.Sprintf("%s > $%d", column, ts)
	}
	*args = append(*args, afterID)
	return fmt.Sprintf(`(%s > $%d OR (%s = $%d AND id COLLATE "C" > $%d))`, column, ts, column, ts, len(*args))
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket                           domain.Ticket
		priority, status                 string
		creator, assignee, helpers, subs []byte
		history, solvedBy                []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&priority,
		&status,
		&creator,
		&assignee,
		&helpers,
		&subs,
		&history,
		&ticket.Solution,
		&ticket.SolvedAt,
		&solvedBy,
		&ticket.AwaitingUserSince,
		&ticket.ClosedAt,
		&ticket.AutoClosed,
		&ticket.AutoCloseReason,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Priority = domain.TicketPriority(priority)
	ticket.Status = domain.TicketStatus(status)
	if err := decodeJSON(creator, &ticket.Creator); err != nil {
		return nil, err
	}
	if len(assignee) > 0 && string(assignee) != "null" {
		ticket.Assignee = &domain.Person{}
		if err := decodeJSON(assignee, ticket.Assignee); err != nil {
			return nil, err
		}
	}
	if len(solvedBy) > 0 && string(solvedBy) != "null" {
		ticket.SolvedBy = &domain.Person{}
		if err := decodeJSON(solvedBy, ticket.SolvedBy); err != nil {
			return nil, err
		}
	}
	if err := decodeJSON(helpers, &ticket.SupportHelpers); err != nil {
		return nil, err
	}
	if err := decodeJSON(subs, &ticket.NotificationSubscribers); err != nil {
		return nil, err
	}
	if err := decodeJSON(history, &ticket.History); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
