package httpserver

import (
	"errors"
	"net/http"

	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/rs/zerolog"
)

// Recovery returns middleware that turns panics into 500 responses.
//
// Install it outermost so that it also catches panics re-raised by
// Telemetry after the event was recorded. When a panic occurs:
//   - it is logged with its location and the correlation ID
//   - a JSON 500 is written, unless the handler already started the response
//   - http.ErrAbortHandler is re-raised so net/http can abort the connection
//
// Example:
//
//	handler := httpserver.Recovery(logger)(myHandler)
func Recovery(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrapResponseWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				info := telemetry.CapturePanic(rec)
				correlationID := CorrelationIDFromContext(r.Context())
				if correlationID == "" {
					correlationID = w.Header().Get(CorrelationIDHeader)
				}

				logger.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("correlation_id", correlationID).
					Str("file", info.FileName).
					Int("line", info.LineNumber).
					Str("stack", info.StackTrace).
					Msg("panic recovered")

				if rw.WroteHeader() {
					return
				}
				WriteError(w, http.StatusInternalServerError,
					"internal server error",
					Error{Field: "server", Message: "an unexpected error occurred"},
				)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
