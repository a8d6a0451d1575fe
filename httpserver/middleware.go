package httpserver

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes multiple middleware into a single middleware.
//
// Middleware are applied in the order provided. The first middleware
// is the outermost (runs first on request, last on response).
//
// Example:
//
//	handler := httpserver.Chain(
//	    httpserver.Recovery(logger),
//	    httpserver.Telemetry(telemetryCfg),
//	    httpserver.RateLimit(rateLimitCfg),
//	)(myHandler)
//
// Request flow:
//
//	Recovery -> Telemetry -> RateLimit -> myHandler -> RateLimit -> Telemetry -> Recovery
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		// Apply in reverse order so first middleware is outermost
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// DefaultMiddleware returns the guard stack for use outside Server, for
// example under another framework's router:
//
//  1. Recovery
//  2. Telemetry (if configured)
//  3. RateLimit (if configured)
//
// Server builds the same stack itself, with Tracing between Recovery and
// Telemetry when enabled.
//
// Example:
//
//	handler := httpserver.DefaultMiddleware(
//	    httpserver.WithDefaultLogger(logger),
//	    httpserver.WithDefaultTelemetry(telemetryCfg),
//	    httpserver.WithDefaultRateLimit(rateLimitCfg),
//	)(mux)
func DefaultMiddleware(opts ...MiddlewareOption) Middleware {
	cfg := &middlewareConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	middlewares := []Middleware{Recovery(cfg.logger)}
	if cfg.telemetry != nil {
		middlewares = append(middlewares, Telemetry(*cfg.telemetry))
	}
	if cfg.rateLimit != nil {
		middlewares = append(middlewares, RateLimit(*cfg.rateLimit))
	}
	return Chain(middlewares...)
}

// middlewareConfig holds options for DefaultMiddleware.
type middlewareConfig struct {
	logger    zerolog.Logger
	telemetry *TelemetryConfig
	rateLimit *RateLimitConfig
}

// MiddlewareOption configures DefaultMiddleware.
type MiddlewareOption func(*middlewareConfig)

// WithDefaultLogger sets the logger used by Recovery.
func WithDefaultLogger(l zerolog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = l
	}
}

// WithDefaultTelemetry adds the telemetry middleware.
func WithDefaultTelemetry(cfg TelemetryConfig) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.telemetry = &cfg
	}
}

// WithDefaultRateLimit adds the rate limit middleware.
func WithDefaultRateLimit(cfg RateLimitConfig) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.rateLimit = &cfg
	}
}
