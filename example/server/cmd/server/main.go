package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	guardconfig "github.com/kroma-labs/sentinel-guard/config"
	"github.com/kroma-labs/sentinel-guard/example/server/internal/config"
	"github.com/kroma-labs/sentinel-guard/example/server/internal/observability"
	"github.com/kroma-labs/sentinel-guard/filelog"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/kroma-labs/sentinel-guard/telemetry"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the guard configuration")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", config.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, configPath string, logger zerolog.Logger) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// 1. Setup OpenTelemetry (Tracing + Metrics)
	shutdownOTel, err := observability.Setup(ctx)
	if err != nil {
		return err
	}

	// 2. Rate limit store, instrumented for Prometheus
	store, closeStore, err := guardconfig.OpenStore(ctx, cfg.RateLimit, logger)
	if err != nil {
		return errors.Join(err, shutdownOTel(context.WithoutCancel(ctx)))
	}
	collector := ratelimit.NewCollector(ratelimit.WithNamespace("guard"))
	rlCfg := cfg.RateLimitConfig()
	rlCfg.Store = ratelimit.Instrument(store, string(cfg.RateLimit.StorageType), collector)

	// 3. Telemetry destinations
	writer := filelog.New(withLogger(cfg.FileLogConfig(), logger))
	telCfg := cfg.TelemetryConfig()
	telCfg.Writer = writer

	srvCfg := httpserver.ProductionConfig()
	srvCfg.Addr = config.Addr

	var health *httpserver.HealthHandler
	r := chi.NewRouter()
	r.Use(httpserver.RouteParams())

	opts := []httpserver.Option{
		httpserver.WithConfig(srvCfg),
		httpserver.WithServiceName(config.ServiceName),
		httpserver.WithLogger(logger),
		httpserver.WithTracing(httpserver.DefaultTracingConfig()),
		httpserver.WithMetrics(httpserver.DefaultMetricsConfig()),
		httpserver.WithHealth(&health, config.ServiceVersion),
		httpserver.WithHandler(r),
		httpserver.WithService("ratelimit-store", closeStore),
		httpserver.WithService("filelog", func(context.Context) error { return writer.Close() }),
		httpserver.WithService("otel", shutdownOTel),
	}

	if sinkCfg, ok := cfg.HTTPSinkConfig(); ok {
		sinkCfg.Logger = logger
		sink, err := telemetry.NewHTTPSink(sinkCfg)
		if err != nil {
			return errors.Join(err, closeStore(ctx), writer.Close(), shutdownOTel(context.WithoutCancel(ctx)))
		}
		telCfg.Sink = sink
		opts = append(opts, httpserver.WithService("telemetry-sink", sink.Close))
	}

	// Elapsed durable rows are only removed by sweeping.
	if cfg.RateLimit.StorageType == guardconfig.StorageSQLServer {
		sweepCtx, stopSweeper := context.WithCancel(context.WithoutCancel(ctx))
		done := ratelimit.StartSweeper(sweepCtx, store, config.SweepIntervalMinutes*time.Minute, logger)
		opts = append(opts, httpserver.WithService("sweeper", func(context.Context) error {
			stopSweeper()
			<-done
			return nil
		}))
	}

	opts = append(opts,
		httpserver.WithTelemetry(telCfg),
		httpserver.WithRateLimit(rlCfg),
	)
	server := httpserver.New(opts...)

	// 4. Routes
	health.AddCheck("ratelimit-store", httpserver.StoreCheck(store))
	r.Method(http.MethodGet, "/ping", health.PingHandler())
	r.Method(http.MethodGet, "/health", health.Handler())
	r.Method(http.MethodGet, "/metrics", httpserver.PrometheusHandler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/orders/{id}", getOrder)
		r.Get("/search", search)
		r.Post("/orders", createOrder)
		r.Get("/fail", fail)
	})

	fmt.Printf("Guard example listening on %s (config %s, store %s)\n",
		config.Addr, configPath, cfg.RateLimit.StorageType)
	return server.ListenAndServe(ctx)
}

func loadConfig(path string) (guardconfig.Config, error) {
	cfg, err := guardconfig.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return guardconfig.Default(), nil
	}
	return cfg, err
}

func withLogger(cfg filelog.Config, logger zerolog.Logger) filelog.Config {
	cfg.Logger = logger
	return cfg
}

func getOrder(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteSuccess(w, http.StatusOK, map[string]string{
		"id":     chi.URLParam(r, "id"),
		"status": "shipped",
	}, "")
}

func search(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteSuccess(w, http.StatusOK, map[string]string{"q": r.URL.Query().Get("q")}, "")
}

func createOrder(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Location", "/api/orders/42")
	httpserver.WriteSuccess(w, http.StatusCreated, map[string]string{"id": "42"}, "order created")
}

// fail reports an upstream error, then panics when asked to.
func fail(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("panic") == "true" {
		panic("order service unavailable")
	}
	telemetry.RecordError(r.Context(), errors.New("inventory lookup failed"))
	httpserver.WriteError(w, http.StatusBadGateway, "upstream failure")
}
