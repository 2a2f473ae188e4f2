package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Notifications  *handlers.NotificationsHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/dashboard", cfg.Tickets.Dashboard)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.EditTicket)
	tickets.Get("/:id/changes", cfg.Tickets.Changes)
	tickets.Post("/:id/interactions", cfg.Tickets.AddInteraction)
	tickets.Post("/:id/confirm", cfg.Tickets.ConfirmSolution)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)

	staffOnly := auth.RequireStaff()
	adminOnly := auth.RequireRole(domain.RoleAdmin)
	tickets.Post("/:id/claim", staffOnly, cfg.StaffTickets.Claim)
	tickets.Post("/:id/reassign", staffOnly, cfg.StaffTickets.Reassign)
	tickets.Post("/:id/helpers", staffOnly, cfg.StaffTickets.AddHelper)
	tickets.Post("/:id/watch", staffOnly, cfg.StaffTickets.Watch)
	tickets.Delete("/:id/watch", staffOnly, cfg.StaffTickets.Unwatch)
	tickets.Post("/:id/triage", adminOnly, cfg.StaffTickets.Triage)
	tickets.Delete("/:id", adminOnly, cfg.StaffTickets.Delete)

	notifications := api.Group("/notifications")
	notifications.Get("/", cfg.Notifications.Poll)
	notifications.Get("/snapshot", cfg.Notifications.Snapshot)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	if cfg.Realtime != nil {
		api.Get("/realtime", cfg.Realtime.Upgrade, cfg.Realtime.Stream())
	}
}
