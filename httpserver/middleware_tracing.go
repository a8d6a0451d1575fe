package httpserver

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// Propagator defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator

	// SkipPaths are path prefixes, matched case-insensitively, that get no span.
	SkipPaths []string

	// SpanNameFormatter defaults to "HTTP {method} {path}".
	SpanNameFormatter func(r *http.Request) string

	serviceName string
}

// DefaultTracingConfig uses the global OTel provider and propagator.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerProvider:    otel.GetTracerProvider(),
		Propagator:        otel.GetTextMapPropagator(),
		SpanNameFormatter: defaultSpanName,
	}
}

func defaultSpanName(r *http.Request) string {
	return "HTTP " + r.Method + " " + r.URL.Path
}

// Tracing returns middleware that starts an OpenTelemetry server span per request.
//
// It runs outside Telemetry, so the trace ID is available as the fallback
// correlation ID. Once the handler returns, the span also carries the
// correlation ID, the rate limit decision and the response status. 5xx
// responses and panics mark the span as failed; panics are re-raised.
//
//	handler := httpserver.Tracing(httpserver.TracingConfig{
//	    TracerProvider: tp,
//	    SkipPaths:      []string{"/health"},
//	})(mux)
func Tracing(cfg TracingConfig) Middleware {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.SpanNameFormatter == nil {
		cfg.SpanNameFormatter = defaultSpanName
	}

	tracer := cfg.TracerProvider.Tracer(instrumentationName)
	skip := lowerAll(cfg.SkipPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasPrefixFold(r.URL.Path, skip) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := cfg.Propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, cfg.SpanNameFormatter(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r, cfg.serviceName)...),
			)
			defer span.End()

			wrapped := wrapResponseWriter(w)
			defer func() {
				if rec := recover(); rec != nil {
					span.RecordError(fmt.Errorf("panic: %v", rec), trace.WithStackTrace(true))
					span.SetStatus(codes.Error, "panic")
					panic(rec)
				}
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))
			annotateResponse(span, wrapped)
		})
	}
}

func requestAttributes(r *http.Request, service string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.URLPath(r.URL.Path),
		semconv.ServerAddress(r.Host),
		semconv.UserAgentOriginal(r.UserAgent()),
		semconv.ClientAddress(ClientIP(r)),
	}
	if service != "" {
		attrs = append(attrs, semconv.ServiceName(service))
	}
	return attrs
}

func annotateResponse(span trace.Span, rw *responseWriter) {
	status := rw.Status()
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))

	h := rw.Header()
	if id := h.Get(CorrelationIDHeader); id != "" {
		span.SetAttributes(attribute.String("correlation.id", id))
	}
	if remaining := h.Get(HeaderRateLimitRemaining); remaining != "" {
		span.SetAttributes(
			attribute.String("ratelimit.remaining", remaining),
			attribute.Bool("ratelimit.rejected", status == http.StatusTooManyRequests),
		)
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
