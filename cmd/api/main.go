package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/bootstrap"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger,
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version))
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to bootstrap", zap.Error(err))
	}
	defer container.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, container.Staff)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, container.Metrics, cfg.App.RequestTimeout())

	health := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
		handlers.PostgresCheck(container.Postgres), handlers.RedisCheck(container.Redis))
	realtime := handlers.NewRealtimeHandler(ctx, container.Notifications, container.Bus, handlers.RealtimeOptions{
		Heartbeat:    cfg.Realtime.Heartbeat(),
		WriteTimeout: cfg.Realtime.WriteTimeout(),
		Logger:       logger.Named("realtime"),
		Metrics:      container.Metrics,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         health,
		Tickets:        handlers.NewTicketsHandler(container.Tickets),
		StaffTickets:   handlers.NewStaffTicketsHandler(container.Tickets),
		Notifications:  handlers.NewNotificationsHandler(container.Notifications),
		Realtime:       realtime,
		AuthMiddleware: authMiddleware,
		Metrics:        container.Metrics,
	})

	sweeper := worker.NewAutoCloseWorker(container.Tickets,
		cfg.AutoClose.Threshold(), cfg.AutoClose.Interval(), cfg.AutoClose.BatchSize, logger.Named("autoclose"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	if container.Bridge != nil {
		g.Go(func() error {
			return container.Bridge.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", zap.Error(err))
	}
	container.Tickets.Wait()
}
