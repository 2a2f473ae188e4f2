package memstore

import (
	"context"
	"sync"
)

// Counter is an in-memory named atomic counter.
type Counter struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewCounter creates an empty counter set.
func NewCounter() *Counter {
	return &Counter{values: make(map[string]int64)}
}

// Increment bumps key and returns its new value.
func (c *Counter) Increment(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key]++
	return c.values[key], nil
}
