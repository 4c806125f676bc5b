package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"catalog/internal/handlers"
	"catalog/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Options are the parts the HTTP app is assembled from.
type Options struct {
	Products *handlers.ProductHandler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Checks are run by /health, keyed by dependency name.
	Checks map[string]CheckFunc
	// RequestLogging enables the access log middleware.
	RequestLogging bool
	// Tracer, when set, opens a server span per request.
	Tracer trace.Tracer
}

// New builds the Fiber app of the products service.
func New(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(recover.New())
	if opts.Tracer != nil {
		app.Use(middleware.Tracing(opts.Tracer, otel.GetTextMapPropagator()))
	}
	if opts.RequestLogging {
		app.Use(logger.New())
	}

	app.Get("/health", healthHandler(opts.Checks))
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	apiV1 := app.Group("/api/v1")
	opts.Products.RegisterRoutes(apiV1)

	return app
}

func healthHandler(checks map[string]CheckFunc) fiber.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		status := "healthy"
		code := fiber.StatusOK
		results := make(fiber.Map, len(names))

		for _, name := range names {
			if err := checks[name](c.UserContext()); err != nil {
				results[name] = err.Error()
				status = "unhealthy"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
			"checks": results,
		})
	}
}
