package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sla            *handlers.SlaHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	sla := app.Group("/api/v1/sla", cfg.AuthMiddleware.Handle)

	sla.Get("/policies", cfg.Sla.ListPolicies)
	sla.Post("/policies", cfg.Sla.CreatePolicy)
	sla.Get("/policies/:policy_id", cfg.Sla.GetPolicy)
	sla.Patch("/policies/:policy_id", cfg.Sla.UpdatePolicy)
	sla.Delete("/policies/:policy_id", cfg.Sla.DeactivatePolicy)

	sla.Get("/tickets/:ticket_id", cfg.Sla.TicketStatus)
	sla.Get("/tickets/:ticket_id/breach", cfg.Sla.TicketBreach)
	sla.Post("/tickets/:ticket_id/recalculate", cfg.Sla.RecalculateTicket)

	sla.Post("/recalculate", cfg.Sla.RecalculateBatch)
	sla.Get("/scheduler/status", cfg.Sla.SchedulerStatus)
	sla.Get("/measurements", cfg.Sla.ListMeasurements)
}
