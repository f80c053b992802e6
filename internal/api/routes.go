package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouteOptions struct {
	Metrics       bool
	RateLimit     int
	AdminUser     string
	AdminPassword string
}

func SetupRoutes(app *fiber.App, handler *Handler, opts RouteOptions) {
	app.Use(RequestID())
	app.Use(ErrorHandler())

	// Health checks (sem rate limiting)
	app.Get("/health", handler.HealthCheck)
	app.Get("/ready", handler.ReadinessCheck)

	if opts.Metrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	app.Get("/swagger/*", swagger.HandlerDefault)

	v1 := app.Group("/api/v1")
	if opts.RateLimit > 0 {
		v1.Use(RateLimiter(opts.RateLimit))
	}
	if opts.Metrics {
		v1.Use(PrometheusMiddleware())
	}

	v1.Post("/capital-gains", handler.Calculate)

	batches := v1.Group("/batches")
	batches.Post("/", handler.ImportBatches)
	batches.Get("/", handler.ListBatches)
	batches.Post("/:id/replay", handler.ReplayBatch)

	admin := v1.Group("/admin")
	admin.Use(BasicAuth(opts.AdminUser, opts.AdminPassword))
	admin.Delete("/cache/:pattern", handler.InvalidateCache)
}
