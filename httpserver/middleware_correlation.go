package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationIDHeader carries the correlation ID on requests and responses.
const CorrelationIDHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// CorrelationID returns middleware that assigns every request a correlation ID,
// echoes it in the X-Correlation-ID response header, and stores it in the
// request context.
//
// The Telemetry middleware does the same on its own; use CorrelationID when
// telemetry is not installed, or for paths telemetry excludes.
//
// Example:
//
//	handler := httpserver.CorrelationID()(myHandler)
//
//	func myHandler(w http.ResponseWriter, r *http.Request) {
//	    id := httpserver.CorrelationIDFromContext(r.Context())
//	}
func CorrelationID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, id := withCorrelationID(r)
			w.Header().Set(CorrelationIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CorrelationIDFromContext returns the request's correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// withCorrelationID resolves the ID as the first of: the X-Correlation-ID
// request header, an ID already in the context, the active trace ID, a new UUID.
func withCorrelationID(r *http.Request) (context.Context, string) {
	ctx := r.Context()
	if id := strings.TrimSpace(r.Header.Get(CorrelationIDHeader)); id != "" {
		return context.WithValue(ctx, correlationIDKey{}, id), id
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}

	var id string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		id = sc.TraceID().String()
	} else {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationIDKey{}, id), id
}
