package httpserver

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the HTTP server configuration parameters.
//
// Start from DefaultConfig, ProductionConfig or DevelopmentConfig; a zero
// Config serves with no timeouts and a silent logger.
//
//	cfg := httpserver.ProductionConfig()
//	cfg.Addr = ":9090"
//
//	server := httpserver.New(
//	    httpserver.WithConfig(cfg),
//	    httpserver.WithRateLimit(rateLimitCfg),
//	    httpserver.WithHandler(mux),
//	)
type Config struct {
	// Addr is the TCP address to listen on. Default ":8080".
	Addr string

	// ServiceName tags spans, metrics, telemetry events and health responses.
	ServiceName string

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// TLSConfig is handed to http.Server for ListenAndServeTLS.
	TLSConfig *tls.Config

	// Logger receives lifecycle events and recovered panics. Middleware
	// configs without their own logger inherit it.
	Logger zerolog.Logger

	// Middleware runs inside the guard stack, just before Handler.
	Middleware []Middleware

	// Handler serves admitted requests. Required.
	Handler http.Handler

	// ShutdownTimeout bounds the whole shutdown: draining in-flight
	// requests, then closing Services.
	ShutdownTimeout time.Duration

	TracingConfig   *TracingConfig
	MetricsConfig   *MetricsConfig // only used together with TelemetryConfig
	TelemetryConfig *TelemetryConfig
	RateLimitConfig *RateLimitConfig

	// HealthHandler is populated by WithHealth with the server's ServiceName.
	HealthHandler **HealthHandler
	HealthVersion string

	// Services are closed concurrently once the HTTP server has stopped.
	Services []Service
}

// Service is a long-lived component (store, file writer, sink) the server
// closes on shutdown.
type Service struct {
	Name  string
	Close func(ctx context.Context) error
}

func baseConfig() Config {
	return Config{
		Addr:           ":8080",
		ServiceName:    "http-server",
		MaxHeaderBytes: 1 << 20,
		Logger:         zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
}

// DefaultConfig returns balanced timeouts: 15s read/write, 60s idle,
// 10s shutdown.
func DefaultConfig() Config {
	cfg := baseConfig()
	cfg.ReadTimeout = 15 * time.Second
	cfg.ReadHeaderTimeout = 10 * time.Second
	cfg.WriteTimeout = 15 * time.Second
	cfg.IdleTimeout = 60 * time.Second
	cfg.ShutdownTimeout = 10 * time.Second
	return cfg
}

// ProductionConfig returns tighter timeouts for Kubernetes, where SIGKILL
// follows SIGTERM after 30s. Shutdown completes within 25s, leaving time to
// flush the telemetry sink and close the rate limit store.
func ProductionConfig() Config {
	cfg := baseConfig()
	cfg.ReadTimeout = 10 * time.Second
	cfg.ReadHeaderTimeout = 5 * time.Second
	cfg.WriteTimeout = 10 * time.Second
	cfg.IdleTimeout = 30 * time.Second
	cfg.ShutdownTimeout = 25 * time.Second
	return cfg
}

// DevelopmentConfig disables read and write timeouts so a debugger can
// hold a request, and shuts down fast. Not for production.
func DevelopmentConfig() Config {
	cfg := baseConfig()
	cfg.IdleTimeout = 120 * time.Second
	cfg.ShutdownTimeout = 3 * time.Second
	return cfg
}
