package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository is a Postgres-backed atomic counter.
type CounterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository instantiates the repository.
func NewCounterRepository(pool *pgxpool.Pool) *CounterRepository {
	return &CounterRepository{pool: pool}
}

// Increment bumps the named counter in one statement and returns the new value.
func (r *CounterRepository) Increment(ctx context.Context, key string) (int64, error) {
	const query = `
        INSERT INTO counters (key, value) VALUES ($1, 1)
        ON CONFLICT (key) DO UPDATE SET value = counters.value + 1
        RETURNING value`
	var value int64
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)
	return value, err
}
