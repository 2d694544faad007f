package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Events         *handlers.EventsHandler
	Policies       *handlers.PoliciesHandler
	Workflows      *handlers.WorkflowsHandler
	Timers         *handlers.TimersHandler
	Reports        *handlers.ReportsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Event ingest accepts service tokens;
// configuration and reporting surfaces require an admin token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(
			cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/tokens/service",
		cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin),
		cfg.Auth.MintServiceToken)

	ingest := app.Group("/events",
		cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin, domain.RoleService))
	ingest.Post("/", cfg.Events.Ingest)

	admin := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))

	policies := admin.Group("/policies")
	policies.Get("/", cfg.Policies.List)
	policies.Post("/", cfg.Policies.Create)
	policies.Get("/:id", cfg.Policies.Get)
	policies.Put("/:id", cfg.Policies.Update)
	policies.Post("/:id/default", cfg.Policies.SetDefault)
	policies.Delete("/:id", cfg.Policies.Deactivate)

	workflows := admin.Group("/workflows")
	workflows.Get("/", cfg.Workflows.List)
	workflows.Post("/", cfg.Workflows.Create)
	workflows.Get("/:id", cfg.Workflows.Get)
	workflows.Put("/:id", cfg.Workflows.Update)
	workflows.Post("/:id/publish", cfg.Workflows.Publish)
	workflows.Post("/:id/unpublish", cfg.Workflows.Unpublish)

	timers := admin.Group("/timers")
	timers.Get("/ticket/:ticketId", cfg.Timers.ListByTicket)
	timers.Get("/:id", cfg.Timers.Get)
	timers.Post("/:id/pause", cfg.Timers.Pause)
	timers.Post("/:id/resume", cfg.Timers.Resume)
	timers.Post("/:id/evaluate", cfg.Timers.Evaluate)

	reports := admin.Group("/reports")
	reports.Get("/compliance", cfg.Reports.Compliance)
	reports.Get("/breaches", cfg.Reports.Breaches)
	reports.Get("/stats", cfg.Reports.Stats)
	reports.Get("/export", cfg.Reports.Export)
}
