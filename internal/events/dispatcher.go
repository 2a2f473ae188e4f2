package events

import (
	"context"
	"strings"
	"sync"
)

// Handler receives published events. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(context.Context, Event)

// Subscription selects events by exact key or by key prefix.
type Subscription struct {
	Key    string
	Prefix bool
}

// Matches reports whether key is selected by the subscription.
func (s Subscription) Matches(key string) bool {
	if s.Prefix {
		return strings.HasPrefix(key, s.Key)
	}
	return key == s.Key
}

// Bus is an in-process publish/subscribe primitive keyed by recipient.
// Delivery is best effort with no retry; pollers recover missed events.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(sub Subscription, handler Handler) (unsubscribe func())
	SubscriberCount() int
}

type subscriber struct {
	sub     Subscription
	handler Handler
}

type inMemoryBus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]subscriber
}

// NewInMemoryBus creates a bus instance.
func NewInMemoryBus() Bus {
	return &inMemoryBus{
		listeners: make(map[uint64]subscriber),
	}
}

// Publish synchronously invokes every matching handler.
func (b *inMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.listeners))
	for _, l := range b.listeners {
		if l.sub.Matches(event.Key) {
			handlers = append(handlers, l.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
}

// Subscribe registers handler and returns an idempotent unsubscribe func.
func (b *inMemoryBus) Subscribe(sub Subscription, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = subscriber{sub: sub, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *inMemoryBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
