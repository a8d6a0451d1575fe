package httpserver

import (
	"context"
	"time"

	"github.com/kroma-labs/sentinel-guard/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kroma-labs/sentinel-guard/httpserver"

// MetricsConfig configures TelemetryMetrics.
type MetricsConfig struct {
	// MeterProvider is the OTel meter provider.
	// If nil, uses otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// serviceName is set internally by the server.
	serviceName string

	// Buckets for request duration histogram (in seconds).
	// Default: [0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10]
	DurationBuckets []float64
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterProvider: otel.GetMeterProvider(),
		DurationBuckets: []float64{
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
		},
	}
}

// TelemetryMetrics records what the Telemetry middleware observes:
//
//   - http.server.request.duration: latency of captured requests
//   - http.server.rate_limited: requests rejected by RateLimit
//   - telemetry.events: events emitted, by destination
//   - telemetry.dispatch.failures: sink errors, by destination
//
// A nil *TelemetryMetrics records nothing.
type TelemetryMetrics struct {
	serviceName     string
	requestDuration metric.Float64Histogram
	rateLimited     metric.Int64Counter
	events          metric.Int64Counter
	failures        metric.Int64Counter
}

// NewTelemetryMetrics creates the instruments on cfg.MeterProvider.
//
// Example:
//
//	metrics, err := httpserver.NewTelemetryMetrics(httpserver.DefaultMetricsConfig())
//	if err != nil {
//	    return err
//	}
//	cfg := httpserver.DefaultTelemetryConfig()
//	cfg.Metrics = metrics
func NewTelemetryMetrics(cfg MetricsConfig) (*TelemetryMetrics, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultMetricsConfig().DurationBuckets
	}

	meter := cfg.MeterProvider.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.DurationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter(
		"http.server.rate_limited",
		metric.WithDescription("Requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	events, err := meter.Int64Counter(
		"telemetry.events",
		metric.WithDescription("Telemetry events emitted per destination"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"telemetry.dispatch.failures",
		metric.WithDescription("Telemetry events a destination failed to accept"),
	)
	if err != nil {
		return nil, err
	}

	return &TelemetryMetrics{
		serviceName:     cfg.serviceName,
		requestDuration: requestDuration,
		rateLimited:     rateLimited,
		events:          events,
		failures:        failures,
	}, nil
}

func (m *TelemetryMetrics) recordRequest(ctx context.Context, e *telemetry.Event, d time.Duration) {
	if m == nil {
		return
	}

	route := e.Route
	if route == "" {
		route = e.Path
	}
	attrs := metric.WithAttributes(
		attribute.String("service.name", m.serviceName),
		attribute.String("http.request.method", e.Method),
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", e.StatusCode),
	)
	m.requestDuration.Record(ctx, d.Seconds(), attrs)
	if e.Tags["RateLimited"] == "true" {
		m.rateLimited.Add(ctx, 1, attrs)
	}
}

func (m *TelemetryMetrics) recordDispatch(ctx context.Context, destination string, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("service.name", m.serviceName),
		attribute.String("destination", destination),
	)
	if err != nil {
		m.failures.Add(ctx, 1, attrs)
		return
	}
	m.events.Add(ctx, 1, attrs)
}
