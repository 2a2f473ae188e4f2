// Package bootstrap assembles stores and services from configuration for
// the binaries under cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/catalog"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memstore"
	"github.com/spec-kit/helpdesk/internal/sequence"
	"github.com/spec-kit/helpdesk/internal/service"
)

// Container holds the wired application graph.
type Container struct {
	Postgres      *persistence.Postgres
	Redis         *persistence.Redis
	Bus           events.Bus
	Bridge        *events.RedisBridge
	Staff         repository.StaffRepository
	Notifications *service.NotificationService
	Tickets       *service.TicketService
	Metrics       *observability.Metrics
}

type stores struct {
	tickets       repository.TicketRepository
	staff         repository.StaffRepository
	notifications repository.NotificationRepository
	counter       sequence.Counter
}

// New connects to the configured backends and wires the services. Without a
// Postgres DSN every store is in-memory.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	rdb := persistence.NewRedis(cfg.Redis, logger)

	c := &Container{Postgres: pg, Redis: rdb, Metrics: observability.NewMetrics()}
	if collector := pg.Collector(); collector != nil {
		c.Metrics.Registry().MustRegister(collector)
	}

	st, err := c.stores(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Staff = st.staff

	c.Bus = events.NewInMemoryBus()
	if cfg.Bus.BridgeEnabled {
		if rdb.Handle() == nil {
			logger.Warn("bus bridge requested without redis; events stay in-process")
		} else {
			c.Bridge = events.NewRedisBridge(c.Bus, rdb.Handle(), cfg.Bus.Channel, logger)
			c.Bus = c.Bridge
		}
	}

	cat, err := loadCatalog(cfg.Catalog.Path, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	clock := domain.SystemClock{}
	c.Notifications = service.NewNotificationService(service.NotificationDependencies{
		Repo:        st.notifications,
		Bus:         c.Bus,
		Clock:       clock,
		Logger:      logger.Named("notifications"),
		Metrics:     c.Metrics,
		RecentItems: cfg.Realtime.RecentItems,
		PollSettle:  cfg.Realtime.PollSettle(),
	})
	c.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:    st.tickets,
		StaffRepo:     st.staff,
		Notifications: c.Notifications,
		Numbers:       sequence.NewGenerator(st.counter, cfg.Sequence.PerYear, clock),
		Catalog:       cat,
		Clock:         clock,
		Limits:        cfg.Ticket,
		Assignment:    cfg.Assignment,
		PollSettle:    cfg.Realtime.PollSettle(),
		Logger:        logger.Named("tickets"),
		Metrics:       c.Metrics,
	})
	return c, nil
}

func (c *Container) stores(cfg *config.Config, logger *zap.Logger) (stores, error) {
	var st stores
	pool := c.Postgres.PoolHandle()
	if pool != nil {
		st.tickets = repository.NewTicketRepository(pool)
		st.staff = repository.NewStaffRepository(pool)
		st.notifications = repository.NewNotificationRepository(pool)
	} else {
		st.tickets = memstore.NewTicketStore()
		st.staff = memstore.NewStaffStore()
		st.notifications = memstore.NewNotificationStore()
	}

	switch cfg.Sequence.Backend {
	case "redis":
		if c.Redis.Handle() == nil {
			return st, errors.New("SEQUENCE_BACKEND=redis requires REDIS_URL or REDIS_ADDR")
		}
		st.counter = sequence.NewRedisCounter(c.Redis.Handle(), "helpdesk:")
	case "postgres":
		if pool != nil {
			st.counter = repository.NewCounterRepository(pool)
			break
		}
		logger.Warn("postgres sequence backend without a database; using in-memory counter")
		st.counter = memstore.NewCounter()
	default:
		st.counter = memstore.NewCounter()
	}
	return st, nil
}

func loadCatalog(path string, logger *zap.Logger) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("catalog file missing; using built-in catalog", zap.String("path", path))
		return catalog.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

// Close releases backend connections.
func (c *Container) Close() {
	c.Redis.Close()
	c.Postgres.Close()
}
