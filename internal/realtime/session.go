// Package realtime implements the push gateway: one Session per connected
// client, re-sending a notification snapshot whenever the bus signals that
// the client's recipient key changed.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/service"
)

// State is the session lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateIdle
	StateSending
	StatePendingResend
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StatePendingResend:
		return "pending_resend"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrUnauthenticated is returned by Serve when no identity was resolved at
// handshake.
var ErrUnauthenticated = errors.New("realtime: unauthenticated session")

// SnapshotSource produces what a client is shown.
type SnapshotSource interface {
	Snapshot(ctx context.Context, viewer domain.Recipient) (service.Snapshot, error)
}

// Options tunes a session.
type Options struct {
	Heartbeat time.Duration
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

type outbound struct {
	Type string `json:"type"`
	service.Snapshot
}

type inbound struct {
	Type string `json:"type"`
}

// Session is the per-connection state machine. At most one snapshot write
// is in flight and at most one more is pending, however many events arrive.
type Session struct {
	transport Transport
	source    SnapshotSource
	bus       events.Bus
	heartbeat time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu          sync.Mutex
	state       State
	recipient   domain.Recipient
	unsubscribe []func()

	writeMu   sync.Mutex
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session in the connecting state.
func NewSession(transport Transport, source SnapshotSource, bus events.Bus, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	return &Session{
		transport: transport,
		source:    source,
		bus:       bus,
		heartbeat: opts.Heartbeat,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		state:     StateConnecting,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Serve binds the session to identity, pushes the initial snapshot and
// blocks until the peer goes away or ctx ends. A peer disconnect is not an
// error. The bus subscription is
// always released before Serve returns.
func (s *Session) Serve(ctx context.Context, identity domain.Identity) error {
	if identity.IsZero() {
		s.Close()
		return ErrUnauthenticated
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	if !s.authenticate(domain.RecipientFor(identity)) {
		return nil
	}
	s.metrics.SessionOpened()
	s.logger.Debug("realtime session opened", zap.String("recipient", s.recipient.Key()))

	go s.sendLoop(ctx)
	go s.heartbeatLoop(ctx)

	// The first snapshot goes out as soon as the session is live.
	s.Trigger()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s.readLoop()
}

func (s *Session) authenticate(recipient domain.Recipient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.recipient = recipient
	s.state = StateAuthenticated

	keys := []string{recipient.Key()}
	if recipient.Kind == domain.RecipientAdmin {
		keys = append(keys, domain.AllAdmins.Key())
	}
	for _, key := range keys {
		unsubscribe := s.bus.Subscribe(events.Subscription{Key: key}, func(context.Context, events.Event) {
			s.Trigger()
		})
		s.unsubscribe = append(s.unsubscribe, unsubscribe)
	}
	s.state = StateIdle
	return true
}

// Trigger requests a snapshot send. It never blocks.
func (s *Session) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
		s.state = StateSending
		select {
		case s.wake <- struct{}{}:
		default:
		}
	case StateSending:
		s.state = StatePendingResend
	}
}

func (s *Session) sendLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			if err := s.sendSnapshot(ctx); err != nil {
				s.logger.Debug("snapshot send failed", zap.String("recipient", s.recipient.Key()), zap.Error(err))
				s.Close()
				return
			}
			if !s.finishSend() {
				break
			}
		}
	}
}

// finishSend settles the state after a write and reports whether a pending
// resend must go out now.
func (s *Session) finishSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePendingResend:
		s.state = StateSending
		return true
	case StateSending:
		s.state = StateIdle
	}
	return false
}

func (s *Session) sendSnapshot(ctx context.Context) error {
	snapshot, err := s.source.Snapshot(ctx, s.recipient)
	if err != nil {
		// A failed read is not fatal; the next trigger or resync retries.
		s.logger.Warn("snapshot read failed", zap.String("recipient", s.recipient.Key()), zap.Error(err))
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.transport.WriteJSON(outbound{Type: "snapshot", Snapshot: snapshot}); err != nil {
		return err
	}
	s.metrics.RecordSnapshot()
	return nil
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.transport.Ping()
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("heartbeat failed", zap.String("recipient", s.recipient.Key()), zap.Error(err))
				s.Close()
				return
			}
		}
	}
}

func (s *Session) readLoop() error {
	for {
		var msg inbound
		if err := s.transport.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Debug("realtime peer gone", zap.String("recipient", s.recipient.Key()), zap.Error(err))
			}
			return nil
		}
		switch msg.Type {
		case "resync":
			s.Trigger()
		case "ping":
		default:
			s.logger.Debug("ignoring client message", zap.String("type", msg.Type))
		}
	}
}

// Close tears the session down and releases its bus subscriptions. It is
// safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasLive := s.state != StateConnecting
		s.state = StateClosed
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()

		for _, fn := range unsubscribe {
			fn()
		}
		close(s.done)
		_ = s.transport.Close()
		if wasLive {
			s.metrics.SessionClosed()
			s.logger.Debug("realtime session closed", zap.String("recipient", s.recipient.Key()))
		}
	})
}
