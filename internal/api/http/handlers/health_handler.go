package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// DependencyCheck is one readiness probe. A nil Ping marks the dependency as
// disabled in this deployment, which does not fail readiness.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// PostgresCheck probes the pool, or reports disabled on in-memory stores.
func PostgresCheck(pg *persistence.Postgres) DependencyCheck {
	check := DependencyCheck{Name: "postgres"}
	if pg.PoolHandle() != nil {
		check.Ping = pg.Ping
	}
	return check
}

// RedisCheck probes redis when it is configured.
func RedisCheck(rdb *persistence.Redis) DependencyCheck {
	check := DependencyCheck{Name: "redis"}
	if rdb.Handle() != nil {
		check.Ping = rdb.Ping
	}
	return check
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	checks      []DependencyCheck
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, checks: checks}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every enabled dependency.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true
	for _, check := range h.checks {
		switch {
		case check.Ping == nil:
			depStatus[check.Name] = "disabled"
		case check.Ping(ctx) != nil:
			depStatus[check.Name] = "unreachable"
			ready = false
		default:
			depStatus[check.Name] = "ok"
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": depStatus,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": depStatus})
}
