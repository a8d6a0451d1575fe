// Package grpcgateway provides middleware adapters for grpc-gateway.
//
// # Quick Start
//
//	gwmux := runtime.NewServeMux()
//
//	// Register gRPC services with gwmux...
//
//	handler := grpcgateway.NewHandler(gwmux, grpcgateway.Config{
//	    Logger:    &logger,
//	    Tracer:    &tracingCfg,
//	    Telemetry: &telemetryCfg,
//	    RateLimit: &rateLimitCfg,
//	})
//
// # Combining with HTTP Endpoints
//
// To serve both gRPC-Gateway and regular HTTP from the same port:
//
//	httpmux := http.NewServeMux()
//	httpmux.Handle("/metrics", httpserver.PrometheusHandler())
//	httpmux.Handle("/health", health.Handler())
//
//	handler := grpcgateway.CombinedMux(gwmux, httpmux)
package grpcgateway

import (
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/rs/zerolog"
)

// WrapWithMiddleware wraps a grpc-gateway ServeMux with httpserver middleware.
//
// The middleware is applied in order (first to last).
func WrapWithMiddleware(mux *runtime.ServeMux, middlewares ...httpserver.Middleware) http.Handler {
	return httpserver.Chain(middlewares...)(mux)
}

// DefaultMiddleware returns a grpc-gateway handler wrapped with Recovery,
// CorrelationID and, when logger is non-nil, Telemetry writing through it.
//
//	handler := grpcgateway.DefaultMiddleware(gwmux, &logger)
func DefaultMiddleware(mux *runtime.ServeMux, logger *zerolog.Logger) http.Handler {
	if logger == nil {
		nop := zerolog.Nop()
		return httpserver.Chain(httpserver.Recovery(nop), httpserver.CorrelationID())(mux)
	}

	cfg := httpserver.DefaultTelemetryConfig()
	cfg.Destination = telemetry.DestinationLocal
	cfg.Logger = *logger
	return httpserver.DefaultMiddleware(
		httpserver.WithDefaultLogger(*logger),
		httpserver.WithDefaultTelemetry(cfg),
	)(mux)
}

// RouteParams records the gateway's matched path pattern and path
// parameters on the request's telemetry scope.
//
// Pass it to runtime.WithMiddlewares when building the ServeMux:
//
//	gwmux := runtime.NewServeMux(runtime.WithMiddlewares(grpcgateway.RouteParams()))
func RouteParams() runtime.Middleware {
	return func(next runtime.HandlerFunc) runtime.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			pattern, _ := runtime.HTTPPathPattern(r.Context())
			telemetry.SetRoute(r.Context(), pattern, pathParams)
			next(w, r, pathParams)
		}
	}
}

// CombinedMux creates a handler that routes between grpc-gateway and HTTP handlers.
//
// Requests with Content-Type "application/grpc" or "application/grpc-web" go to gwmux.
// All other requests go to httpmux.
func CombinedMux(gwmux *runtime.ServeMux, httpmux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if contentType == "application/grpc" || contentType == "application/grpc-web" {
			gwmux.ServeHTTP(w, r)
			return
		}
		httpmux.ServeHTTP(w, r)
	})
}

// Config holds configuration for NewHandler.
type Config struct {
	// Logger enables Recovery.
	Logger *zerolog.Logger

	// Tracer enables OpenTelemetry tracing.
	Tracer *httpserver.TracingConfig

	// Telemetry enables request telemetry.
	Telemetry *httpserver.TelemetryConfig

	// RateLimit enables rate limiting.
	RateLimit *httpserver.RateLimitConfig

	// ServiceAuth enables service-to-service authentication.
	ServiceAuth *httpserver.ServiceAuthConfig
}

// NewHandler creates a production-ready grpc-gateway handler.
//
// Applies middleware in the following order:
//  1. Recovery (if Logger provided)
//  2. Tracing (if Tracer provided)
//  3. Telemetry (if Telemetry provided)
//  4. RateLimit (if RateLimit provided)
//  5. ServiceAuth (if ServiceAuth provided)
//  6. CorrelationID
func NewHandler(mux *runtime.ServeMux, cfg Config) http.Handler {
	var middlewares []httpserver.Middleware

	if cfg.Logger != nil {
		middlewares = append(middlewares, httpserver.Recovery(*cfg.Logger))
	}

	if cfg.Tracer != nil {
		middlewares = append(middlewares, httpserver.Tracing(*cfg.Tracer))
	}

	if cfg.Telemetry != nil {
		middlewares = append(middlewares, httpserver.Telemetry(*cfg.Telemetry))
	}

	if cfg.RateLimit != nil {
		middlewares = append(middlewares, httpserver.RateLimit(*cfg.RateLimit))
	}

	if cfg.ServiceAuth != nil {
		middlewares = append(middlewares, httpserver.ServiceAuth(*cfg.ServiceAuth))
	}

	middlewares = append(middlewares, httpserver.CorrelationID())

	return httpserver.Chain(middlewares...)(mux)
}
