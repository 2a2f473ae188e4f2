package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/realtime"
)

const sessionIdentityKey = "realtime_identity"

// RealtimeHandler upgrades authenticated requests to push sessions.
type RealtimeHandler struct {
	ctx          context.Context
	source       realtime.SnapshotSource
	bus          events.Bus
	heartbeat    time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// RealtimeOptions configures the push gateway.
type RealtimeOptions struct {
	Heartbeat    time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// NewRealtimeHandler constructs handler. Sessions end when ctx is cancelled.
func NewRealtimeHandler(ctx context.Context, source realtime.SnapshotSource, bus events.Bus, opts RealtimeOptions) *RealtimeHandler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RealtimeHandler{
		ctx:          ctx,
		source:       source,
		bus:          bus,
		heartbeat:    opts.Heartbeat,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
}

// Upgrade rejects plain HTTP and carries the handshake identity into the
// websocket connection.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	c.Locals(sessionIdentityKey, caller)
	return c.Next()
}

// Stream GET /realtime.
func (h *RealtimeHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		identity, _ := conn.Locals(sessionIdentityKey).(domain.Identity)
		transport := realtime.NewWebsocketTransport(conn, h.writeTimeout, 2*h.heartbeat)
		session := realtime.NewSession(transport, h.source, h.bus, realtime.Options{
			Heartbeat: h.heartbeat,
			Logger:    h.logger,
			Metrics:   h.metrics,
		})
		if err := session.Serve(h.ctx, identity); err != nil {
			h.logger.Warn("realtime session ended", zap.Error(err))
		}
	})
}
