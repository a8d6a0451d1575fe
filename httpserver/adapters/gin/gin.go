// Package gin provides middleware adapters for the Gin framework.
//
// # Quick Start
//
//	r := gin.New()
//
//	r.Use(ginsentinel.Recovery(logger))
//	r.Use(ginsentinel.Telemetry(telemetryCfg))
//	r.Use(ginsentinel.RateLimit(rateLimitCfg))
//	r.Use(ginsentinel.RouteParams())
//
//	ginsentinel.RegisterHealth(r, healthHandler)
//
// # Available Middleware
//
//   - Recovery: panic recovery with a 500 JSON response
//   - Tracing: OpenTelemetry distributed tracing
//   - Telemetry: request/response capture dispatched to a sink and/or log file
//   - RateLimit, RateLimitByIP: fixed-window quotas
//   - CorrelationID: X-Correlation-ID propagation
//   - ServiceAuth: service-to-service authentication
//   - RouteParams: records Gin's route template and path params on the telemetry event
//
// # Service Endpoints
//
//   - RegisterHealth: /ping, /health
//   - RegisterPrometheus: /metrics
package gin

import (
	"net/http"
	"time"

	ginlib "github.com/gin-gonic/gin"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/rs/zerolog"
)

// WrapMiddleware adapts httpserver middleware to Gin middleware.
//
//	r.Use(ginsentinel.WrapMiddleware(myCustomMiddleware))
func WrapMiddleware(m httpserver.Middleware) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		var reached bool
		outer := c.Writer
		handler := m(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			c.Request = r
			c.Writer = &responseWriter{ResponseWriter: outer, next: w}
			c.Next()
			c.Writer = outer
		}))
		handler.ServeHTTP(outer, c.Request)
		// The wrapped middleware answered on its own (rejected, unauthorized).
		if !reached {
			c.Abort()
		}
	}
}

// responseWriter routes Gin's writes through the writer handed down by the
// wrapped middleware so it observes status and body.
type responseWriter struct {
	ginlib.ResponseWriter
	next http.ResponseWriter
}

func (w *responseWriter) WriteHeader(code int) {
	w.next.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	return w.next.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	return w.next.Write([]byte(s))
}

// Recovery returns Gin middleware that recovers from panics.
//
//	r.Use(ginsentinel.Recovery(logger))
func Recovery(logger zerolog.Logger) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// CorrelationID returns Gin middleware that forwards or generates X-Correlation-ID.
func CorrelationID() ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.CorrelationID())
}

// Tracing returns Gin middleware for OpenTelemetry tracing.
//
//	r.Use(ginsentinel.Tracing(httpserver.DefaultTracingConfig()))
func Tracing(cfg httpserver.TracingConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Tracing(cfg))
}

// Telemetry returns Gin middleware that captures each request as a
// telemetry event.
//
//	r.Use(ginsentinel.Telemetry(httpserver.DefaultTelemetryConfig()))
func Telemetry(cfg httpserver.TelemetryConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Telemetry(cfg))
}

// RateLimit returns Gin middleware for fixed-window rate limiting.
//
//	cfg := httpserver.DefaultRateLimitConfig()
//	cfg.Store = ratelimit.NewRedisStore(redisClient)
//	r.Use(ginsentinel.RateLimit(cfg))
func RateLimit(cfg httpserver.RateLimitConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.RateLimit(cfg))
}

// RateLimitByIP returns Gin middleware admitting limit requests per client IP per window.
//
//	r.Use(ginsentinel.RateLimitByIP(store, 100, time.Minute))
func RateLimitByIP(store ratelimit.Store, limit int, window time.Duration) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.RateLimitByIP(store, limit, window))
}

// ServiceAuth returns Gin middleware for service-to-service auth.
//
//	validator := httpserver.NewMemoryCredentialValidator(map[string]string{
//	    os.Getenv("CLIENT_ID"): os.Getenv("PASS_KEY"),
//	})
//	r.Use(ginsentinel.ServiceAuth(httpserver.ServiceAuthConfig{
//	    Validator: validator,
//	}))
func ServiceAuth(cfg httpserver.ServiceAuthConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.ServiceAuth(cfg))
}

// RouteParams records the matched Gin route and its path parameters on the
// request's telemetry scope. Register it after Telemetry.
func RouteParams() ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		c.Next()
		values := make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			values[p.Key] = p.Value
		}
		telemetry.SetRoute(c.Request.Context(), c.FullPath(), values)
	}
}

// WrapHandler wraps an http.Handler as a Gin handler.
//
//	r.GET("/custom", ginsentinel.WrapHandler(myHandler))
func WrapHandler(h http.Handler) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RegisterHealth registers GET /ping and GET /health on a Gin router.
func RegisterHealth(r *ginlib.Engine, h *httpserver.HealthHandler) {
	r.GET("/ping", WrapHandler(h.PingHandler()))
	r.GET("/health", WrapHandler(h.Handler()))
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
//
//	ginsentinel.RegisterPrometheus(r, "/metrics")
func RegisterPrometheus(r *ginlib.Engine, path string) {
	if path == "" {
		path = "/metrics"
	}
	r.GET(path, WrapHandler(httpserver.PrometheusHandler()))
}
