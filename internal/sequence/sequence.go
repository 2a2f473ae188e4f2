// Package sequence issues human-facing ticket numbers from an atomic counter.
package sequence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const (
	counterKey = "ticket_number"
	// yearSpan leaves room for a million tickets per year when partitioned.
	yearSpan = 1_000_000
)

// Counter is an atomically incremented named counter.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// Generator issues strictly increasing, never reused ticket numbers.
// Numbers may have gaps when an insert fails after the increment.
type Generator struct {
	counter Counter
	perYear bool
	clock   domain.Clock
}

// NewGenerator wires a generator over counter. With perYear the counter is
// partitioned by calendar year and the year prefixes the number.
func NewGenerator(counter Counter, perYear bool, clock domain.Clock) *Generator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Generator{counter: counter, perYear: perYear, clock: clock}
}

// Next returns the next ticket number.
func (g *Generator) Next(ctx context.Context) (int64, error) {
	key := counterKey
	year := g.clock.Now().Year()
	if g.perYear {
		key = counterKey + ":" + strconv.Itoa(year)
	}
	n, err := g.counter.Increment(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	if !g.perYear {
		return n, nil
	}
	if n >= yearSpan {
		return 0, fmt.Errorf("ticket counter for %d exhausted", year)
	}
	return int64(year)*yearSpan + n, nil
}

// RedisCounter increments counters with INCR.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter builds a counter whose keys live under prefix.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

// Increment bumps the key atomically on the Redis server.
func (c *RedisCounter) Increment(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, c.prefix+key).Result()
}
