package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var (
	importantRequestHeaders  = []string{"Content-Type", "Accept", "Accept-Language", "Referer", "Origin"}
	importantResponseHeaders = []string{"Content-Type", "Content-Length", "Location", "Cache-Control"}
)

// TelemetryConfig configures the telemetry middleware.
//
// Start from DefaultTelemetryConfig; the zero value is disabled.
type TelemetryConfig struct {
	// Enabled turns telemetry on.
	// Default: true
	Enabled bool

	// LogRequests captures request details: query map, headers, body, form.
	// With both LogRequests and LogResponses off, the middleware is transparent.
	// Default: true
	LogRequests bool

	// LogResponses captures response headers and body.
	// Default: true
	LogResponses bool

	// LogExceptions records panics, errors reported with telemetry.RecordError,
	// and request cancellation on the event.
	// Default: true
	LogExceptions bool

	// LogBody enables request and response body capture.
	// Default: true
	LogBody bool

	// MaxRequestBodySize is the largest request body captured, in bytes.
	// Default: 10240
	MaxRequestBodySize int

	// MaxResponseBodySize is the largest response body captured, in bytes.
	// Default: 10240
	MaxResponseBodySize int

	// ExcludedPaths are path prefixes, matched case-insensitively, that bypass telemetry.
	// Default: ["/health", "/swagger", "/ui"]
	ExcludedPaths []string

	// ExcludedMethods bypass telemetry, matched case-insensitively.
	ExcludedMethods []string

	// IncludeRequestHeaders records every request header instead of the important ones.
	IncludeRequestHeaders bool

	// IncludeResponseHeaders records every response header instead of the important ones.
	IncludeResponseHeaders bool

	// SensitiveHeaders are masked wherever headers are recorded.
	// Default: ["Authorization", "Api-Key", "X-API-Key"]
	SensitiveHeaders []string

	// SensitiveQueryParameters are masked in query strings, query maps and form fields.
	// Default: ["password", "token", "apikey", "secret"]
	SensitiveQueryParameters []string

	// ExcludedContentTypes are never captured as bodies. An entry matches
	// when the content type contains it.
	// Default: ["application/octet-stream", "image/", "video/", "audio/"]
	ExcludedContentTypes []string

	// Destination selects the local log, the remote sink, or both.
	// Default: telemetry.DestinationBoth
	Destination telemetry.Destination

	// Sink receives events for the remote destination. Nil makes Remote a no-op.
	Sink telemetry.Sink

	// Writer receives formatted lines for the local destination, typically a
	// *filelog.Writer. Nil writes only the structured log.
	Writer telemetry.LineWriter

	// Logger receives one structured line per request for the local destination,
	// and sink failures.
	// Under Server, a zero or Nop logger inherits the server's.
	Logger zerolog.Logger

	// Metrics, if set, records request durations and dispatch outcomes.
	Metrics *TelemetryMetrics

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	// serviceName is set internally by the server.
	serviceName string
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:                  true,
		LogRequests:              true,
		LogResponses:             true,
		LogExceptions:            true,
		LogBody:                  true,
		MaxRequestBodySize:       10240,
		MaxResponseBodySize:      10240,
		ExcludedPaths:            []string{"/health", "/swagger", "/ui"},
		SensitiveHeaders:         []string{"Authorization", "Api-Key", "X-API-Key"},
		SensitiveQueryParameters: []string{"password", "token", "apikey", "secret"},
		ExcludedContentTypes:     []string{"application/octet-stream", "image/", "video/", "audio/"},
		Destination:              telemetry.DestinationBoth,
		Logger:                   zerolog.Nop(),
		Now:                      time.Now,
	}
}

// Telemetry returns middleware that records one telemetry.Event per request
// and dispatches it to the local log, the remote sink, or both.
//
// The middleware assigns a correlation ID (see CorrelationID), installs a
// telemetry.Scope for inner handlers to report into, and tees the response
// body while it is written. Panics are recorded and re-raised so an outer
// Recovery can answer the client; the event is emitted either way.
//
// Example:
//
//	writer := filelog.New(filelog.DefaultConfig())
//	defer writer.Close()
//
//	cfg := httpserver.DefaultTelemetryConfig()
//	cfg.Writer = writer
//	cfg.Logger = logger
//	handler := httpserver.Chain(
//	    httpserver.Recovery(logger),
//	    httpserver.Telemetry(cfg),
//	)(mux)
func Telemetry(cfg TelemetryConfig) Middleware {
	if !cfg.Enabled || (!cfg.LogRequests && !cfg.LogResponses) {
		return func(next http.Handler) http.Handler { return next }
	}

	def := DefaultTelemetryConfig()
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = def.MaxRequestBodySize
	}
	if cfg.MaxResponseBodySize <= 0 {
		cfg.MaxResponseBodySize = def.MaxResponseBodySize
	}
	if cfg.Destination == "" {
		cfg.Destination = def.Destination
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	t := &telemetryMiddleware{
		cfg:              cfg,
		redactor:         telemetry.NewRedactor(cfg.SensitiveHeaders, cfg.SensitiveQueryParameters),
		excludedPaths:    lowerAll(cfg.ExcludedPaths),
		excludedMethods:  make(map[string]struct{}, len(cfg.ExcludedMethods)),
		excludedContents: lowerAll(cfg.ExcludedContentTypes),
		sinkErrLog:       rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
	for _, m := range cfg.ExcludedMethods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			t.excludedMethods[m] = struct{}{}
		}
	}

	return t.wrap
}

type telemetryMiddleware struct {
	cfg              TelemetryConfig
	redactor         *telemetry.Redactor
	excludedPaths    []string
	excludedMethods  map[string]struct{}
	excludedContents []string
	sinkErrLog       rate.Sometimes
}

func (t *telemetryMiddleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := t.cfg.Now()
		ctx, id := withCorrelationID(r)
		w.Header().Set(CorrelationIDHeader, id)
		ctx, scope := telemetry.NewScope(ctx)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("correlation.id", id))
		r = r.WithContext(ctx)

		e := t.captureRequest(r, id, start)

		var rw *responseWriter
		if t.cfg.LogResponses && t.cfg.LogBody {
			rw = wrapResponseWriterWithBody(w, t.cfg.MaxResponseBodySize)
		} else {
			rw = wrapResponseWriter(w)
		}

		defer func() {
			rec := recover()

			var panicInfo *telemetry.ExceptionInfo
			if rec != nil && t.cfg.LogExceptions {
				panicInfo = telemetry.CapturePanic(rec)
			}
			t.finish(r, e, rw, scope, rec != nil, panicInfo, start)
			t.dispatch(ctx, e)

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(rw, r)
	})
}

func (t *telemetryMiddleware) skip(r *http.Request) bool {
	if hasPrefixFold(r.URL.Path, t.excludedPaths) {
		return true
	}
	_, excluded := t.excludedMethods[strings.ToUpper(r.Method)]
	return excluded
}

// captureRequest builds the in-progress event from the request. It may
// replace r.Body with a re-readable copy.
func (t *telemetryMiddleware) captureRequest(r *http.Request, correlationID string, start time.Time) *telemetry.Event {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	e := &telemetry.Event{
		CorrelationID:    correlationID,
		Method:           r.Method,
		Scheme:           scheme,
		Host:             r.Host,
		Protocol:         r.Proto,
		Path:             r.URL.Path,
		QueryString:      t.redactor.RawQuery(r.URL.RawQuery),
		ContentType:      r.Header.Get("Content-Type"),
		ContentLength:    max(r.ContentLength, 0),
		ClientIP:         ClientIP(r),
		UserAgent:        r.UserAgent(),
		RequestTimestamp: start.UTC(),
	}

	e.ImportantRequestHeaders = t.pick(r.Header, importantRequestHeaders)
	if !t.cfg.LogRequests {
		return e
	}

	if len(r.URL.RawQuery) > 0 {
		e.QueryParams = t.redactor.Values(r.URL.Query())
	}
	if t.cfg.IncludeRequestHeaders {
		e.RequestHeaders = t.redactor.Headers(r.Header)
	}

	mediaType := contentMediaType(e.ContentType)
	isForm := mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
	wantBody := t.cfg.LogBody && !t.excludedContent(e.ContentType)
	if (!wantBody && !isForm) || r.ContentLength <= 0 || r.ContentLength > int64(t.cfg.MaxRequestBodySize) {
		return e
	}

	body, ok := bufferBody(r)
	if !ok {
		return e
	}

	if isForm {
		e.FormFields = t.formFields(mediaType, e.ContentType, body)
	}
	if wantBody {
		if mediaType == "application/x-www-form-urlencoded" {
			e.RequestBody = t.redactor.RawQuery(string(body))
		} else {
			e.RequestBody = string(body)
		}
	}
	return e
}

// bufferBody reads the whole request body and replaces it with a copy.
// On a read error the bytes read so far are put back in front of the
// remaining stream and capture is skipped.
func bufferBody(r *http.Request) ([]byte, bool) {
	orig := r.Body
	body, err := io.ReadAll(io.LimitReader(orig, r.ContentLength))
	if err != nil {
		r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), orig), Closer: orig}
		return nil, false
	}
	r.Body = readCloser{Reader: bytes.NewReader(body), Closer: orig}
	return body, true
}

type readCloser struct {
	io.Reader
	io.Closer
}

func (t *telemetryMiddleware) formFields(mediaType, contentType string, body []byte) map[string]string {
	var values url.Values
	switch mediaType {
	case "application/x-www-form-urlencoded":
		parsed, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		values = parsed
	case "multipart/form-data":
		_, params, err := mime.ParseMediaType(contentType)
		if err != nil || params["boundary"] == "" {
			return nil
		}
		form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(int64(len(body)))
		if err != nil {
			return nil
		}
		defer func() { _ = form.RemoveAll() }()
		values = form.Value
	}
	if len(values) == 0 {
		return nil
	}
	return t.redactor.Values(values)
}

// finish completes the event after the handler returned or panicked.
func (t *telemetryMiddleware) finish(
	r *http.Request,
	e *telemetry.Event,
	rw *responseWriter,
	scope *telemetry.Scope,
	panicked bool,
	panicInfo *telemetry.ExceptionInfo,
	start time.Time,
) {
	end := t.cfg.Now()
	e.ResponseTimestamp = end.UTC()
	e.DurationMs = telemetry.DurationMillis(end.Sub(start))

	e.StatusCode = rw.Status()
	if panicked && !rw.WroteHeader() {
		e.StatusCode = http.StatusInternalServerError
	}

	h := rw.Header()
	e.ResponseContentType = h.Get("Content-Type")
	e.ResponseContentLength = rw.BytesWritten()
	if cl, err := strconv.ParseInt(h.Get("Content-Length"), 10, 64); err == nil {
		e.ResponseContentLength = cl
	}
	if t.cfg.LogResponses {
		if t.cfg.IncludeResponseHeaders {
			e.ResponseHeaders = t.redactor.Headers(h)
		} else {
			e.ImportantResponseHeaders = t.pick(h, importantResponseHeaders)
		}
		if body, truncated := rw.CapturedBody(); len(body) > 0 && !truncated && !t.excludedContent(e.ResponseContentType) {
			e.ResponseBody = string(body)
		}
	}

	snap := scope.Snapshot()
	e.Route = snap.Route
	e.RouteValues = snap.RouteValues
	e.Controller = snap.Controller
	e.Action = snap.Action
	e.Tags = snap.Tags

	principal := snap.Principal
	if principal == nil {
		principal, _ = telemetry.PrincipalFromContext(r.Context())
	}
	e.User = telemetry.Identify(principal, t.redactor)

	if t.cfg.LogExceptions {
		switch {
		case panicInfo != nil:
			e.Exception = panicInfo
		case snap.Exception != nil:
			e.Exception = snap.Exception
		case r.Context().Err() != nil:
			e.Exception = telemetry.CaptureError(r.Context().Err(), 0)
		}
	}
	e.ErrorReason = telemetry.ErrorReason(e.StatusCode)
}

// dispatch hands the event to each selected destination independently.
func (t *telemetryMiddleware) dispatch(ctx context.Context, e *telemetry.Event) {
	ctx = context.WithoutCancel(ctx)
	t.cfg.Metrics.recordRequest(ctx, e, time.Duration(e.DurationMs*float64(time.Millisecond)))

	if t.cfg.Destination.Remote() && t.cfg.Sink != nil {
		t.deliver(ctx, "remote", func() error {
			err := t.cfg.Sink.Track(ctx, e)
			if e.Exception != nil {
				err = errors.Join(err, t.cfg.Sink.TrackException(ctx, e.Exception, map[string]string{
					"RequestPath":     e.Path,
					"RequestMethod":   e.Method,
					"ClientIpAddress": e.ClientIP,
					"CorrelationId":   e.CorrelationID,
				}))
			}
			return err
		})
	}

	if t.cfg.Destination.Local() {
		t.deliver(ctx, "local", func() error {
			if t.cfg.Writer != nil {
				t.cfg.Writer.WriteLog(telemetry.FormatLine(e))
			}
			t.logEvent(e)
			return nil
		})
	}
}

// deliver runs one destination, containing its errors and panics.
func (t *telemetryMiddleware) deliver(ctx context.Context, destination string, fn func() error) {
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("httpserver: %s destination panicked: %v", destination, rec)
			}
		}()
		err = fn()
	}()

	t.cfg.Metrics.recordDispatch(ctx, destination, err)
	if err != nil {
		t.sinkErrLog.Do(func() {
			t.cfg.Logger.Error().Err(err).Str("destination", destination).Msg("telemetry dispatch failed")
		})
	}
}

func (t *telemetryMiddleware) logEvent(e *telemetry.Event) {
	var event *zerolog.Event
	switch {
	case e.StatusCode >= 500 || e.Exception != nil:
		event = t.cfg.Logger.Error()
	case e.StatusCode >= 400:
		event = t.cfg.Logger.Warn()
	default:
		event = t.cfg.Logger.Info()
	}
	if event == nil {
		return
	}

	event.
		Str("service", t.cfg.serviceName).
		Str("correlation_id", e.CorrelationID).
		Str("method", e.Method).
		Str("path", e.Path).
		Str("query", e.QueryString).
		Int("status", e.StatusCode).
		Float64("duration_ms", e.DurationMs).
		Int64("bytes", e.ResponseContentLength).
		Str("client_ip", e.ClientIP).
		Str("user_agent", e.UserAgent)

	if e.Route != "" {
		event.Str("route", e.Route)
	}
	if u := e.User; u != nil {
		event.Str("user_id", u.UserID).Str("tenant_id", u.TenantID)
	}
	if ex := e.Exception; ex != nil {
		event.
			Str("exception_type", ex.Type).
			Str("exception_message", ex.Message).
			Str("exception_file", ex.FileName).
			Int("exception_line", ex.LineNumber)
	}
	if e.ErrorReason != "" {
		event.Str("error_reason", e.ErrorReason)
	}
	event.Msg("request completed")
}

func (t *telemetryMiddleware) pick(h http.Header, names []string) map[string]string {
	var out map[string]string
	for _, name := range names {
		if v := h.Values(name); len(v) > 0 {
			if out == nil {
				out = make(map[string]string, len(names))
			}
			out[name] = t.redactor.Header(name, strings.Join(v, ", "))
		}
	}
	return out
}

func (t *telemetryMiddleware) excludedContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	ct := strings.ToLower(contentType)
	for _, ex := range t.excludedContents {
		if strings.Contains(ct, ex) {
			return true
		}
	}
	return false
}

func contentMediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
