package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// headerCarrier exposes the request and response headers of a Fiber context
// to an OpenTelemetry propagator.
type headerCarrier struct {
	c *fiber.Ctx
}

func (h headerCarrier) Get(key string) string {
	return h.c.Get(key)
}

func (h headerCarrier) Set(key, value string) {
	h.c.Set(key, value)
}

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0)
	h.c.Request().Header.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

// Tracing starts a server span for every request, continuing any trace the
// caller propagated, and stores it in the user context for handlers.
func Tracing(tracer trace.Tracer, propagator propagation.TextMapPropagator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := propagator.Extract(c.UserContext(), headerCarrier{c})

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Method(), c.Path()),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", c.Path()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)
		err := c.Next()

		status := c.Response().StatusCode()
		if fiberErr, ok := err.(*fiber.Error); ok {
			status = fiberErr.Code
		}
		span.SetAttributes(
			attribute.String("http.route", c.Route().Path),
			attribute.Int("http.response.status_code", status),
		)
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		if err != nil {
			span.RecordError(err)
		}
		return err
	}
}
