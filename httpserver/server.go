package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Server is an http.Server wrapped in the guard pipeline (recovery,
// tracing, telemetry, rate limiting) that drains gracefully on SIGTERM,
// SIGINT or context cancellation and then closes its registered services.
//
//	server := httpserver.New(
//	    httpserver.WithConfig(httpserver.ProductionConfig()),
//	    httpserver.WithServiceName("orders-api"),
//	    httpserver.WithRateLimit(rateLimitCfg),
//	    httpserver.WithTelemetry(telemetryCfg),
//	    httpserver.WithService("rate-limit-store", store.Close),
//	    httpserver.WithHandler(mux),
//	)
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal().Err(err).Msg("server failed")
//	}
type Server struct {
	httpServer *http.Server
	config     Config
	logger     zerolog.Logger
}

// New builds a Server from DefaultConfig plus opts. A handler is required
// before serving (WithHandler).
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "http-server"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	var handler http.Handler
	if cfg.Handler != nil {
		handler = Chain(guardStack(cfg, cfg.Logger)...)(cfg.Handler)
	}

	if cfg.HealthHandler != nil {
		*cfg.HealthHandler = NewHealthHandler(
			withHealthServiceName(cfg.ServiceName),
			WithVersion(cfg.HealthVersion),
		)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
			TLSConfig:         cfg.TLSConfig,
		},
		config: cfg,
		logger: cfg.Logger,
	}
}

// ListenAndServe serves plain HTTP until ctx is done or a termination
// signal arrives, then shuts down within ShutdownTimeout. It returns nil
// after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	return s.serve(ctx, false, s.httpServer.ListenAndServe)
}

// ListenAndServeTLS is ListenAndServe over TLS.
func (s *Server) ListenAndServeTLS(ctx context.Context, certFile, keyFile string) error {
	return s.serve(ctx, true, func() error {
		return s.httpServer.ListenAndServeTLS(certFile, keyFile)
	})
}

// guardStack builds the request pipeline around the user middleware:
// Recovery, Tracing, Telemetry, RateLimit, then cfg.Middleware.
//
// Telemetry wraps RateLimit so rejected requests are still captured, and
// Recovery wraps Telemetry so a panic is recorded before the 500 is written.
func guardStack(cfg Config, logger zerolog.Logger) []Middleware {
	middlewares := []Middleware{Recovery(logger)}

	if cfg.TracingConfig != nil {
		tracingCfg := *cfg.TracingConfig
		tracingCfg.serviceName = cfg.ServiceName
		middlewares = append(middlewares, Tracing(tracingCfg))
	}

	if cfg.TelemetryConfig != nil {
		telemetryCfg := *cfg.TelemetryConfig
		telemetryCfg.serviceName = cfg.ServiceName
		if cfg.MetricsConfig != nil && telemetryCfg.Metrics == nil {
			metricsCfg := *cfg.MetricsConfig
			metricsCfg.serviceName = cfg.ServiceName
			metrics, err := NewTelemetryMetrics(metricsCfg)
			if err != nil {
				logger.Warn().Err(err).Msg("telemetry metrics disabled")
			}
			telemetryCfg.Metrics = metrics
		}
		telemetryCfg.Logger = inheritLogger(telemetryCfg.Logger, logger)
		middlewares = append(middlewares, Telemetry(telemetryCfg))
	}

	if cfg.RateLimitConfig != nil {
		rateLimitCfg := *cfg.RateLimitConfig
		rateLimitCfg.Logger = inheritLogger(rateLimitCfg.Logger, logger)
		middlewares = append(middlewares, RateLimit(rateLimitCfg))
	}

	return append(middlewares, cfg.Middleware...)
}

// inheritLogger returns fallback when own writes nothing: zerolog.Nop()
// from the Default*Config constructors, or the zero Logger of a config
// built by hand.
func inheritLogger(own, fallback zerolog.Logger) zerolog.Logger {
	if own.GetLevel() == zerolog.Disabled || reflect.ValueOf(own).IsZero() {
		return fallback
	}
	return own
}

func (s *Server) serve(ctx context.Context, useTLS bool, listen func() error) error {
	if s.config.Handler == nil {
		return errors.New("httpserver: handler is required (use WithHandler)")
	}

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", s.httpServer.Addr).
			Bool("tls", useTLS).
			Str("service", s.config.ServiceName).
			Msg("server starting")

		if err := listen(); !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			s.logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-stopCtx.Done():
		if ctx.Err() != nil {
			s.logger.Info().Err(ctx.Err()).Msg("context cancelled, shutting down")
		} else {
			s.logger.Info().Msg("termination signal received, shutting down")
		}
	}

	return s.shutdown(ctx)
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info().
		Dur("timeout", s.config.ShutdownTimeout).
		Msg("starting graceful shutdown")

	// ctx is usually already cancelled here; keep its values, drop its deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	var drainErr error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("graceful shutdown failed, forcing close")
		drainErr = errors.Join(err, s.httpServer.Close())
	}

	if err := errors.Join(drainErr, s.closeServices(shutdownCtx)); err != nil {
		return err
	}

	s.logger.Info().Msg("server stopped gracefully")
	return nil
}

// closeServices closes every registered Service concurrently. A failing
// service does not stop the others from closing.
func (s *Server) closeServices(ctx context.Context) error {
	var g errgroup.Group
	for _, svc := range s.config.Services {
		if svc.Close == nil {
			continue
		}
		g.Go(func() error {
			if err := svc.Close(ctx); err != nil {
				s.logger.Error().Err(err).Str("service", svc.Name).Msg("service close failed")
				return fmt.Errorf("httpserver: close %s: %w", svc.Name, err)
			}
			s.logger.Debug().Str("service", svc.Name).Msg("service closed")
			return nil
		})
	}
	return g.Wait()
}

// Shutdown drains the server under ctx and then closes registered
// services. Use it when shutdown is driven by something other than the
// context given to ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.closeServices(ctx)
}

// Addr returns the configured listen address, not the bound one.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the handler wrapped in the full request pipeline, for
// serving from an existing listener or from httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) ServiceName() string {
	return s.config.ServiceName
}
