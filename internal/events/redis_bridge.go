package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisBridge extends a local bus across processes. Local publishes are
// delivered in-process and mirrored to a Redis channel; events from other
// processes are replayed into the local bus by Run.
type RedisBridge struct {
	local   Bus
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRedisBridge wraps local. The bridge itself satisfies Bus.
func NewRedisBridge(local Bus, client *redis.Client, channel string, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{
		local:   local,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

var _ Bus = (*RedisBridge)(nil)

func (b *RedisBridge) Publish(ctx context.Context, event Event) {
	b.local.Publish(ctx, event)

	payload, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		b.logger.Warn("bus bridge encode failed", zap.String("key", event.Key), zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, b.channel, string(payload)).Err(); err != nil {
		b.logger.Warn("bus bridge publish failed", zap.String("key", event.Key), zap.Error(err))
	}
}

func (b *RedisBridge) Subscribe(sub Subscription, handler Handler) func() {
	return b.local.Subscribe(sub, handler)
}

func (b *RedisBridge) SubscriberCount() int {
	return b.local.SubscriberCount()
}

// Run relays remote events until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("bus bridge subscribed", zap.String("channel", b.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handleRemote(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) handleRemote(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("bus bridge decode failed", zap.Error(err))
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.local.Publish(ctx, env.Event)
}
