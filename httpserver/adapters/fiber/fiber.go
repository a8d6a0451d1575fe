// Package fiber provides middleware adapters for the Fiber framework.
//
// # Performance Note
//
// Fiber uses fasthttp, not net/http. This adapter uses gofiber/adaptor to
// bridge the gap. The wrapped middleware sees the converted net/http request,
// so rate limiting, authentication and correlation work unchanged. Responses
// written by Fiber handlers go straight to fasthttp: Telemetry records what
// the net/http chain itself wrote (rate limit rejections, recovered panics)
// and the status Fiber reports once the chain returns.
//
// # Quick Start
//
//	app := fiber.New()
//
//	app.Use(fibersentinel.Recovery(logger))
//	app.Use(fibersentinel.RateLimit(rateLimitCfg))
//
//	fibersentinel.RegisterHealth(app, healthHandler)
//
// # Available Middleware
//
//   - Recovery: panic recovery with a 500 JSON response
//   - Tracing: OpenTelemetry distributed tracing
//   - Telemetry: request capture dispatched to a sink and/or log file
//   - RateLimit, RateLimitByIP: fixed-window quotas
//   - CorrelationID: X-Correlation-ID propagation
//   - ServiceAuth: service-to-service authentication
//
// # Service Endpoints
//
//   - RegisterHealth: /ping, /health
//   - RegisterPrometheus: /metrics
package fiber

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/rs/zerolog"
)

// WrapMiddleware adapts httpserver middleware to Fiber middleware.
//
//	app.Use(fibersentinel.WrapMiddleware(myCustomMiddleware))
func WrapMiddleware(m httpserver.Middleware) fiber.Handler {
	return adaptor.HTTPMiddleware(func(next http.Handler) http.Handler {
		return m(next)
	})
}

// Recovery returns Fiber middleware that recovers from panics.
//
//	app.Use(fibersentinel.Recovery(logger))
func Recovery(logger zerolog.Logger) fiber.Handler {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// CorrelationID returns Fiber middleware that forwards or generates X-Correlation-ID.
func CorrelationID() fiber.Handler {
	return WrapMiddleware(httpserver.CorrelationID())
}

// Tracing returns Fiber middleware for OpenTelemetry tracing.
//
//	app.Use(fibersentinel.Tracing(httpserver.DefaultTracingConfig()))
func Tracing(cfg httpserver.TracingConfig) fiber.Handler {
	return WrapMiddleware(httpserver.Tracing(cfg))
}

// Telemetry returns Fiber middleware that captures each request as a
// telemetry event. See the package note on response capture.
func Telemetry(cfg httpserver.TelemetryConfig) fiber.Handler {
	return WrapMiddleware(httpserver.Telemetry(cfg))
}

// RateLimit returns Fiber middleware for fixed-window rate limiting.
//
//	cfg := httpserver.DefaultRateLimitConfig()
//	cfg.Store = ratelimit.NewRedisStore(redisClient)
//	app.Use(fibersentinel.RateLimit(cfg))
func RateLimit(cfg httpserver.RateLimitConfig) fiber.Handler {
	return WrapMiddleware(httpserver.RateLimit(cfg))
}

// RateLimitByIP returns Fiber middleware admitting limit requests per client IP per window.
//
//	app.Use(fibersentinel.RateLimitByIP(store, 100, time.Minute))
func RateLimitByIP(store ratelimit.Store, limit int, window time.Duration) fiber.Handler {
	return WrapMiddleware(httpserver.RateLimitByIP(store, limit, window))
}

// ServiceAuth returns Fiber middleware for service-to-service auth.
//
//	app.Use(fibersentinel.ServiceAuth(httpserver.ServiceAuthConfig{
//	    Validator: validator,
//	}))
func ServiceAuth(cfg httpserver.ServiceAuthConfig) fiber.Handler {
	return WrapMiddleware(httpserver.ServiceAuth(cfg))
}

// RegisterHealth registers GET /ping and GET /health on a Fiber app.
func RegisterHealth(app *fiber.App, h *httpserver.HealthHandler) {
	app.Get("/ping", adaptor.HTTPHandler(h.PingHandler()))
	app.Get("/health", adaptor.HTTPHandler(h.Handler()))
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
//
//	fibersentinel.RegisterPrometheus(app, "/metrics")
func RegisterPrometheus(app *fiber.App, path string) {
	if path == "" {
		path = "/metrics"
	}
	app.Get(path, adaptor.HTTPHandler(httpserver.PrometheusHandler()))
}
