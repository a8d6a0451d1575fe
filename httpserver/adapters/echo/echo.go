// Package echo provides middleware adapters for the Echo framework.
//
// # Quick Start
//
//	e := echo.New()
//
//	e.Use(echosentinel.Recovery(logger))
//	e.Use(echosentinel.Telemetry(telemetryCfg))
//	e.Use(echosentinel.RateLimit(rateLimitCfg))
//	e.Use(echosentinel.RouteParams())
//
//	echosentinel.RegisterHealth(e, healthHandler)
//
// # Available Middleware
//
//   - Recovery: panic recovery with a 500 JSON response
//   - Tracing: OpenTelemetry distributed tracing
//   - Telemetry: request/response capture dispatched to a sink and/or log file
//   - RateLimit, RateLimitByIP: fixed-window quotas
//   - CorrelationID: X-Correlation-ID propagation
//   - ServiceAuth: service-to-service authentication
//   - RouteParams: records Echo's route template and path params on the telemetry event
//
// # Service Endpoints
//
//   - RegisterHealth: /ping, /health
//   - RegisterPrometheus: /metrics
package echo

import (
	"net/http"
	"time"

	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	echolib "github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// WrapMiddleware adapts httpserver middleware to Echo middleware.
//
// While the wrapped middleware runs, the Echo response writes through the
// writer it hands down, so status and body are visible to it.
//
//	e.Use(echosentinel.WrapMiddleware(myCustomMiddleware))
func WrapMiddleware(m httpserver.Middleware) echolib.MiddlewareFunc {
	return func(next echolib.HandlerFunc) echolib.HandlerFunc {
		return func(c echolib.Context) error {
			var err error
			res := c.Response()
			outer := res.Writer
			handler := m(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				res.Writer = w
				defer func() { res.Writer = outer }()
				err = next(c)
				if err != nil && !res.Committed {
					// Let Echo render the error while the wrapped middleware still sees it.
					c.Error(err)
					err = nil
				}
			}))
			handler.ServeHTTP(outer, c.Request())
			return err
		}
	}
}

// Recovery returns Echo middleware that recovers from panics.
//
//	e.Use(echosentinel.Recovery(logger))
func Recovery(logger zerolog.Logger) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// CorrelationID returns Echo middleware that forwards or generates X-Correlation-ID.
func CorrelationID() echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.CorrelationID())
}

// Tracing returns Echo middleware for OpenTelemetry tracing.
//
//	e.Use(echosentinel.Tracing(httpserver.DefaultTracingConfig()))
func Tracing(cfg httpserver.TracingConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Tracing(cfg))
}

// Telemetry returns Echo middleware that captures each request as a
// telemetry event.
func Telemetry(cfg httpserver.TelemetryConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Telemetry(cfg))
}

// RateLimit returns Echo middleware for fixed-window rate limiting.
//
//	cfg := httpserver.DefaultRateLimitConfig()
//	cfg.Store = ratelimit.NewRedisStore(redisClient)
//	e.Use(echosentinel.RateLimit(cfg))
func RateLimit(cfg httpserver.RateLimitConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.RateLimit(cfg))
}

// RateLimitByIP returns Echo middleware admitting limit requests per client IP per window.
//
//	e.Use(echosentinel.RateLimitByIP(store, 100, time.Minute))
func RateLimitByIP(store ratelimit.Store, limit int, window time.Duration) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.RateLimitByIP(store, limit, window))
}

// ServiceAuth returns Echo middleware for service-to-service auth.
//
//	e.Use(echosentinel.ServiceAuth(httpserver.ServiceAuthConfig{
//	    Validator: validator,
//	}))
func ServiceAuth(cfg httpserver.ServiceAuthConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.ServiceAuth(cfg))
}

// RouteParams records the matched Echo route and its path parameters on
// the request's telemetry scope. Register it after Telemetry.
func RouteParams() echolib.MiddlewareFunc {
	return func(next echolib.HandlerFunc) echolib.HandlerFunc {
		return func(c echolib.Context) error {
			err := next(c)
			names, values := c.ParamNames(), c.ParamValues()
			params := make(map[string]string, len(names))
			for i, name := range names {
				if i < len(values) {
					params[name] = values[i]
				}
			}
			telemetry.SetRoute(c.Request().Context(), c.Path(), params)
			return err
		}
	}
}

// RegisterHealth registers GET /ping and GET /health on an Echo instance.
func RegisterHealth(e *echolib.Echo, h *httpserver.HealthHandler) {
	e.GET("/ping", echolib.WrapHandler(h.PingHandler()))
	e.GET("/health", echolib.WrapHandler(h.Handler()))
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
//
//	echosentinel.RegisterPrometheus(e, "/metrics")
func RegisterPrometheus(e *echolib.Echo, path string) {
	if path == "" {
		path = "/metrics"
	}
	e.GET(path, echolib.WrapHandler(httpserver.PrometheusHandler()))
}
