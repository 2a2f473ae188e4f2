package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationFilter narrows recipient listings.
// With CreatedAfter set the listing is a forward page in (created_at, id)
// order; without it the newest records come first.
type NotificationFilter struct {
	CreatedAfter *time.Time
	AfterID      string
	UnreadOnly   bool
	Limit        int
}

// NotificationRepository stores per-recipient notifications. Queries take
// the viewer's recipient; admins also see records addressed to AllAdmins.
type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	ListForRecipient(ctx context.Context, viewer domain.Recipient, filter NotificationFilter) ([]domain.Notification, error)
	CountUnread(ctx context.Context, viewer domain.Recipient) (int64, error)
	MarkRead(ctx context.Context, id string, viewer domain.Recipient, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, viewer domain.Recipient, at time.Time) (int64, error)
	DeleteByTicket(ctx context.Context, ticketID string) (int64, error)
}

const notificationColumns = `id, recipient_kind, recipient_id, ticket_id, type, title, message, url, meta, created_at, read_at`

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds the Postgres-backed repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	meta, err := json.Marshal(n.Meta)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO notifications (id, recipient_kind, recipient_id, ticket_id, type, title, message, url, meta, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10)`
	_, err = r.pool.Exec(ctx, query,
		n.ID,
		string(n.Recipient.Kind),
		n.Recipient.ID,
		n.TicketID,
		string(n.Type),
		n.Title,
		n.Message,
		n.URL,
		string(meta),
		n.CreatedAt,
	)
	return err
}

func (r *notificationRepository) ListForRecipient(ctx context.Context, viewer domain.Recipient, filter NotificationFilter) ([]domain.Notification, error) {
	args := []any{}
	clauses := []string{viewerClause(viewer, &args)}
	order := `created_at DESC, id COLLATE "C" DESC`
	if filter.CreatedAfter != nil {
		clauses = append(clauses, keysetClause("created_at", *filter.CreatedAfter, filter.AfterID, &args))
		order = `created_at ASC, id COLLATE "C" ASC`
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "read_at IS NULL")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY %s LIMIT %d`,
		notificationColumns, strings.Join(clauses, " AND "), order, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, viewer domain.Recipient) (int64, error) {
	args := []any{}
	query := `SELECT COUNT(*) FROM notifications WHERE ` + viewerClause(viewer, &args) + ` AND read_at IS NULL`
	var count int64
	err := r.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string, viewer domain.Recipient, at time.Time) (int64, error) {
	args := []any{at, id}
	query := `UPDATE notifications SET read_at=$1 WHERE id=$2 AND read_at IS NULL AND ` + viewerClause(viewer, &args)
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if cmd.RowsAffected() > 0 {
		return cmd.RowsAffected(), nil
	}
	existsArgs := []any{id}
	var exists bool
	existsQuery := `SELECT EXISTS(SELECT 1 FROM notifications WHERE id=$1 AND ` + viewerClause(viewer, &existsArgs) + `)`
	if err := r.pool.QueryRow(ctx, existsQuery, existsArgs...).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, viewer domain.Recipient, at time.Time) (int64, error) {
	args := []any{at}
	query := `UPDATE notifications SET read_at=$1 WHERE read_at IS NULL AND ` + viewerClause(viewer, &args)
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) DeleteByTicket(ctx context.Context, ticketID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// viewerClause appends the viewer's parameters and returns its predicate.
func viewerClause(viewer domain.Recipient, args *[]any) string {
	*args = append(*args, string(viewer.Kind))
	kind := len(*args)
	*args = append(*args, viewer.ID)
	id := len(*args)
	if viewer.Kind == domain.RecipientAdmin {
		return fmt.Sprintf("(recipient_kind=$%d AND (recipient_id=$%d OR recipient_id='%s'))", kind, id, domain.WildcardID)
	}
	return fmt.Sprintf("(recipient_kind=$%d AND recipient_id=$%d)", kind, id)
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n         domain.Notification
		kind, typ string
		meta      []byte
	)
	if err := row.Scan(
		&n.ID,
		&kind,
		&n.Recipient.ID,
		&n.TicketID,
		&typ,
		&n.Title,
		&n.Message,
		&n.URL,
		&meta,
		&n.CreatedAt,
		&n.ReadAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n.Recipient.Kind = domain.RecipientKind(kind)
	n.Type = domain.NotificationType(typ)
	if err := decodeJSON(meta, &n.Meta); err != nil {
		return nil, err
	}
	return &n, nil
}
