package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
)

// Redis wraps the go-redis client used by the sequence counter and the bus
// bridge.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client from REDIS_URL, falling back to REDIS_ADDR. It
// returns nil when neither is set. An unreachable server is logged, not
// fatal: go-redis reconnects on demand.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	opts, err := redisOptions(cfg)
	if err != nil {
		logger.Error("invalid redis configuration; redis features disabled", zap.Error(err))
		return nil
	}
	if opts == nil {
		logger.Info("REDIS_ADDR not provided; redis features disabled")
		return nil
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", opts.Addr))
	}

	return &Redis{Client: client}
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		return redis.ParseURL(cfg.URL)
	}
	if cfg.Addr == "" {
		return nil, nil
	}
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Handle returns the client, or nil when redis is disabled.
func (r *Redis) Handle() *redis.Client {
	if r == nil {
		return nil
	}
	return r.Client
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
