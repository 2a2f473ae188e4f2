package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// StaffFilter defines query params for staff listing.
type StaffFilter struct {
	Roles          []domain.Role
	IncludeBlocked bool
	Limit          int
}

// StaffRepository handles persistence for technicians and administrators.
type StaffRepository interface {
	Upsert(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error)
}

// EligibleFilter selects everyone the assignment engine may consider.
func EligibleFilter() StaffFilter {
	return StaffFilter{Roles: []domain.Role{domain.RoleTechnician, domain.RoleAdmin}, Limit: 1000}
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

func (r *staffRepository) Upsert(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (id, name, login, role, blocked)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE
        SET name=EXCLUDED.name, login=EXCLUDED.login, role=EXCLUDED.role, blocked=EXCLUDED.blocked, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query, staff.ID, staff.Name, staff.Login, string(staff.Role), staff.Blocked)
	return err
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	const query = `SELECT id, name, login, role, blocked FROM staff_members WHERE id=$1`
	staff, err := scanStaff(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return staff, err
}

func (r *staffRepository) List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	query := `SELECT id, name, login, role, blocked FROM staff_members`
	args := []any{}
	clauses := []string{}

	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			roles[i] = string(role)
		}
		args = append(args, roles)
		clauses = append(clauses, fmt.Sprintf("role = ANY($%d)", len(args)))
	}
	if !filter.IncludeBlocked {
		clauses = append(clauses, "blocked = FALSE")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY login ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *staff)
	}
	return result, rows.Err()
}

func scanStaff(row pgx.Row) (*domain.StaffMember, error) {
	var (
		staff domain.StaffMember
		role  string
	)
	if err := row.Scan(&staff.ID, &staff.Name, &staff.Login, &role, &staff.Blocked); err != nil {
		return nil, err
	}
	staff.Role = domain.Role(role)
	return &staff, nil
}
