package httpserver

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Option configures the server.
type Option func(*Config)

// WithConfig applies all settings from a Config struct.
//
// Use one of the preset configurations (DefaultConfig, ProductionConfig,
// DevelopmentConfig) as a starting point, then override specific fields.
// Apply it first: it replaces everything set by earlier options.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithServiceName sets the service name for the entire server.
//
// The server passes this value to tracing spans, metrics, telemetry log
// entries and health responses.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithHandler sets the HTTP handler for the server. Required.
func WithHandler(h http.Handler) Option {
	return func(c *Config) {
		c.Handler = h
	}
}

// WithLogger sets the logger for lifecycle events and recovered panics.
//
// Per-request logging is the telemetry middleware's job; see WithTelemetry.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMiddleware adds middleware between the guard stack and the handler.
//
// Middleware is applied in order (first middleware wraps outermost). Every
// middleware added here runs after rate limiting, so rejected requests
// never reach it.
//
// Example:
//
//	server := httpserver.New(
//	    httpserver.WithHandler(router),
//	    httpserver.WithMiddleware(
//	        httpserver.CorrelationID(),
//	        httpserver.RouteParams(),
//	    ),
//	)
func WithMiddleware(ms ...Middleware) Option {
	return func(c *Config) {
		c.Middleware = append(c.Middleware, ms...)
	}
}

// WithTracing enables OpenTelemetry tracing middleware.
//
// The server's ServiceName is applied to all spans.
func WithTracing(cfg TracingConfig) Option {
	return func(c *Config) {
		c.TracingConfig = &cfg
	}
}

// WithMetrics enables OpenTelemetry instruments on the telemetry middleware:
// request durations, rate-limited requests and dispatch failures.
//
// Metrics are recorded by the telemetry middleware, so WithTelemetry must
// also be set.
func WithMetrics(cfg MetricsConfig) Option {
	return func(c *Config) {
		c.MetricsConfig = &cfg
	}
}

// WithTelemetry enables the telemetry middleware.
//
// Example:
//
//	writer := filelog.New(filelog.DefaultConfig())
//	tcfg := httpserver.DefaultTelemetryConfig()
//	tcfg.Destination = telemetry.DestinationLocal
//	tcfg.Writer = writer
//
//	server := httpserver.New(
//	    httpserver.WithServiceName("my-api"),
//	    httpserver.WithTelemetry(tcfg),
//	    httpserver.WithService("filelog", func(context.Context) error { return writer.Close() }),
//	    httpserver.WithHandler(mux),
//	)
func WithTelemetry(cfg TelemetryConfig) Option {
	return func(c *Config) {
		c.TelemetryConfig = &cfg
	}
}

// WithRateLimit enables global rate limiting for all requests.
//
// For per-endpoint rate limiting, use the RateLimit middleware directly on
// specific routes instead.
//
// Example:
//
//	store := ratelimit.NewMemoryStore()
//	server := httpserver.New(
//	    httpserver.WithRateLimit(httpserver.RateLimitConfig{
//	        Enabled:     true,
//	        PermitLimit: 100,
//	        Window:      time.Minute,
//	        Store:       store,
//	    }),
//	    httpserver.WithService("ratelimit-store", func(context.Context) error { return store.Close() }),
//	    httpserver.WithHandler(mux),
//	)
//
// Example (stricter limit on one route):
//
//	mux.Handle("/api/login", httpserver.RateLimitByIP(store, 10, time.Minute)(loginHandler))
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(c *Config) {
		c.RateLimitConfig = &cfg
	}
}

// WithHealth creates a HealthHandler with the server's ServiceName and
// version, and stores it in handler for adding checks and registering routes.
//
// Example:
//
//	var health *httpserver.HealthHandler
//	server := httpserver.New(
//	    httpserver.WithServiceName("my-api"),
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithHandler(mux),
//	)
//
//	health.AddCheck("ratelimit-store", httpserver.StoreCheck(store))
//	mux.Handle("/ping", health.PingHandler())
//	mux.Handle("/health", health.Handler())
func WithHealth(handler **HealthHandler, version string) Option {
	return func(c *Config) {
		c.HealthVersion = version
		c.HealthHandler = handler
	}
}

// WithService registers a component closed after the HTTP server stops.
// Services are closed concurrently within the shutdown timeout.
func WithService(name string, closeFn func(ctx context.Context) error) Option {
	return func(c *Config) {
		c.Services = append(c.Services, Service{Name: name, Close: closeFn})
	}
}
