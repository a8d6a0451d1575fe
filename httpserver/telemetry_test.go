package httpserver_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kroma-labs/sentinel-guard/filelog"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/kroma-labs/sentinel-guard/telemetry/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type trackedException struct {
	info *telemetry.ExceptionInfo
	tags map[string]string
}

type recordingSink struct {
	mu         sync.Mutex
	events     []*telemetry.Event
	exceptions []trackedException
	err        error
}

func (s *recordingSink) Track(_ context.Context, e *telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) TrackException(_ context.Context, ex *telemetry.ExceptionInfo, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, trackedException{info: ex, tags: tags})
	return nil
}

func (s *recordingSink) all() []*telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*telemetry.Event(nil), s.events...)
}

func (s *recordingSink) last(t *testing.T) *telemetry.Event {
	t.Helper()
	events := s.all()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func remoteTelemetry(sink telemetry.Sink) httpserver.TelemetryConfig {
	cfg := httpserver.DefaultTelemetryConfig()
	cfg.Destination = telemetry.DestinationRemote
	cfg.Sink = sink
	return cfg
}

func TestTelemetry_Redaction(t *testing.T) {
	t.Parallel()

	t.Run("given sensitive query and headers, when captured, then they are masked", func(t *testing.T) {
		sink := &recordingSink{}
		cfg := remoteTelemetry(sink)
		cfg.IncludeRequestHeaders = true
		h := httpserver.Telemetry(cfg)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/search?token=abc&id=42&password=p", nil)
		req.Header.Set("Authorization", "Bearer secret")
		req.Header.Set("Accept", "application/json")
		h.ServeHTTP(httptest.NewRecorder(), req)

		e := sink.last(t)
		assert.Equal(t, "token=***MASKED***&id=42&password=***MASKED***", e.QueryString)
		assert.Equal(t, map[string]string{
			"token":    "***MASKED***",
			"id":       "42",
			"password": "***MASKED***",
		}, e.QueryParams)
		assert.Equal(t, "***MASKED***", e.RequestHeaders["Authorization"])
		assert.Equal(t, "application/json", e.ImportantRequestHeaders["Accept"])
		assert.NotContains(t, e.ImportantRequestHeaders, "Authorization")
	})

	t.Run("given form post, when captured, then sensitive fields are masked and handler reads the body", func(t *testing.T) {
		sink := &recordingSink{}
		var seen url.Values
		h := httpserver.Telemetry(remoteTelemetry(sink))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			seen = r.PostForm
			w.WriteHeader(http.StatusNoContent)
		}))

		form := url.Values{"user": {"ann"}, "password": {"hunter2"}}.Encode()
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		h.ServeHTTP(httptest.NewRecorder(), req)

		e := sink.last(t)
		assert.Equal(t, "hunter2", seen.Get("password"))
		assert.Equal(t, map[string]string{"user": "ann", "password": "***MASKED***"}, e.FormFields)
		assert.NotContains(t, e.RequestBody, "hunter2")
	})
}

func TestTelemetry_Bodies(t *testing.T) {
	t.Parallel()

	t.Run("given JSON request and response, when captured, then both bodies are recorded", func(t *testing.T) {
		sink := &recordingSink{}
		var got []byte
		h := httpserver.Telemetry(remoteTelemetry(sink))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"name":"pen"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		e := sink.last(t)
		assert.Equal(t, `{"name":"pen"}`, string(got))
		assert.Equal(t, `{"name":"pen"}`, e.RequestBody)
		assert.Equal(t, rec.Body.String(), e.ResponseBody)
		assert.Equal(t, http.StatusCreated, e.StatusCode)
		assert.Equal(t, int64(len(`{"id":1}`)), e.ResponseContentLength)
		assert.Equal(t, "application/json", e.ImportantResponseHeaders["Content-Type"])
	})

	t.Run("given response larger than the limit, when captured, then client gets all and body is dropped", func(t *testing.T) {
		sink := &recordingSink{}
		cfg := remoteTelemetry(sink)
		cfg.MaxResponseBodySize = 8
		payload := strings.Repeat("x", 32)
		h := httpserver.Telemetry(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(payload[:16]))
			_, _ = w.Write([]byte(payload[16:]))
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/big", nil))

		assert.Equal(t, payload, rec.Body.String())
		e := sink.last(t)
		assert.Empty(t, e.ResponseBody)
		assert.Equal(t, int64(32), e.ResponseContentLength)
	})

	t.Run("given excluded content type, when captured, then body is skipped", func(t *testing.T) {
		sink := &recordingSink{}
		h := httpserver.Telemetry(remoteTelemetry(sink))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/logo.png", nil))

		assert.Empty(t, sink.last(t).ResponseBody)
	})

	t.Run("given request body over the limit, when captured, then handler still reads it whole", func(t *testing.T) {
		sink := &recordingSink{}
		cfg := remoteTelemetry(sink)
		cfg.MaxRequestBodySize = 4
		var got []byte
		h := httpserver.Telemetry(cfg)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got, _ = io.ReadAll(r.Body)
		}))

		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("0123456789"))
		req.Header.Set("Content-Type", "text/plain")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "0123456789", string(got))
		assert.Empty(t, sink.last(t).RequestBody)
	})
}

func TestTelemetry_Gating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*httpserver.TelemetryConfig)
		method  string
		path    string
		wantHit bool
	}{
		{
			name:    "given default config, when GET /api, then event emitted",
			method:  http.MethodGet,
			path:    "/api",
			wantHit: true,
		},
		{
			name:   "given excluded path, when GET /health/live, then no event",
			method: http.MethodGet,
			path:   "/health/live",
		},
		{
			name:   "given excluded method, when OPTIONS, then no event",
			mutate: func(c *httpserver.TelemetryConfig) { c.ExcludedMethods = []string{"options"} },
			method: http.MethodOptions,
			path:   "/api",
		},
		{
			name: "given requests and responses both off, when GET, then middleware is transparent",
			mutate: func(c *httpserver.TelemetryConfig) {
				c.LogRequests = false
				c.LogResponses = false
			},
			method: http.MethodGet,
			path:   "/api",
		},
		{
			name:   "given disabled, when GET, then no event",
			mutate: func(c *httpserver.TelemetryConfig) { c.Enabled = false },
			method: http.MethodGet,
			path:   "/api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			cfg := remoteTelemetry(sink)
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			rec := httptest.NewRecorder()
			httpserver.Telemetry(cfg)(okHandler()).ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if tt.wantHit {
				assert.Len(t, sink.all(), 1)
				assert.NotEmpty(t, rec.Header().Get(httpserver.CorrelationIDHeader))
				return
			}
			assert.Empty(t, sink.all())
			assert.Empty(t, rec.Header().Get(httpserver.CorrelationIDHeader))
		})
	}

	t.Run("given only responses logged, when GET with query, then query map is not captured", func(t *testing.T) {
		sink := &recordingSink{}
		cfg := remoteTelemetry(sink)
		cfg.LogRequests = false

		httpserver.Telemetry(cfg)(okHandler()).ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodGet, "/api?id=1", nil))

		e := sink.last(t)
		assert.Equal(t, "id=1", e.QueryString)
		assert.Nil(t, e.QueryParams)
	})
}

func TestTelemetry_Local(t *testing.T) {
	t.Parallel()

	t.Run("given fixed correlation ID, when logged locally, then it reaches header, file and log", func(t *testing.T) {
		fcfg := filelog.DefaultConfig()
		fcfg.Directory = t.TempDir()
		writer := filelog.New(fcfg)
		t.Cleanup(func() { _ = writer.Close() })

		var logs bytes.Buffer
		cfg := httpserver.DefaultTelemetryConfig()
		cfg.Destination = telemetry.DestinationLocal
		cfg.Writer = writer
		cfg.Logger = zerolog.New(&logs)

		req := httptest.NewRequest(http.MethodGet, "/api/orders?token=t", nil)
		req.Header.Set(httpserver.CorrelationIDHeader, "fixed-xyz")
		rec := httptest.NewRecorder()
		httpserver.Telemetry(cfg)(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, "fixed-xyz", rec.Header().Get(httpserver.CorrelationIDHeader))

		content, err := os.ReadFile(writer.Path())
		require.NoError(t, err)
		line := string(content)
		assert.Contains(t, line, "CorrelationId: fixed-xyz")
		assert.Contains(t, line, "Method: GET | Path: /api/orders | QueryString: token=***MASKED***")
		assert.True(t, strings.HasPrefix(line, "["))

		assert.Contains(t, logs.String(), `"correlation_id":"fixed-xyz"`)
		assert.Contains(t, logs.String(), `"message":"request completed"`)
	})

	t.Run("given both destinations, when sink fails, then local still logs and response is unaffected", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("collector down")}
		var logs bytes.Buffer
		cfg := httpserver.DefaultTelemetryConfig()
		cfg.Sink = sink
		cfg.Logger = zerolog.New(&logs)

		rec := httptest.NewRecorder()
		httpserver.Telemetry(cfg)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, sink.all(), 1)
		assert.Contains(t, logs.String(), "telemetry dispatch failed")
		assert.Contains(t, logs.String(), "request completed")
	})
}

func TestTelemetry_SinkCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		mockFn  func(sink *mocks.Sink)
	}{
		{
			name:    "given successful request, when dispatched, then only Track is called",
			handler: okHandler().ServeHTTP,
			mockFn: func(sink *mocks.Sink) {
				sink.EXPECT().
					Track(mock.Anything, mock.MatchedBy(func(e *telemetry.Event) bool {
						return e.StatusCode == http.StatusOK && e.Exception == nil && e.ErrorReason == ""
					})).
					Return(nil).
					Once()
			},
		},
		{
			name: "given recorded error, when dispatched, then TrackException gets the request tags",
			handler: func(w http.ResponseWriter, r *http.Request) {
				telemetry.RecordError(r.Context(), errors.New("db timeout"))
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			mockFn: func(sink *mocks.Sink) {
				sink.EXPECT().Track(mock.Anything, mock.Anything).Return(nil).Once()
				sink.EXPECT().
					TrackException(
						mock.Anything,
						mock.MatchedBy(func(ex *telemetry.ExceptionInfo) bool { return ex.Message == "db timeout" }),
						mock.MatchedBy(func(tags map[string]string) bool {
							return tags["RequestPath"] == "/orders" && tags["RequestMethod"] == http.MethodGet
						}),
					).
					Return(nil).
					Once()
			},
		},
		{
			name:    "given panicking sink, when dispatched, then the panic is contained",
			handler: okHandler().ServeHTTP,
			mockFn: func(sink *mocks.Sink) {
				sink.EXPECT().
					Track(mock.Anything, mock.Anything).
					RunAndReturn(func(context.Context, *telemetry.Event) error { panic("sink bug") }).
					Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := mocks.NewSink(t)
			tt.mockFn(sink)
			cfg := httpserver.DefaultTelemetryConfig()
			cfg.Destination = telemetry.DestinationRemote
			cfg.Sink = sink

			h := httpserver.Telemetry(cfg)(tt.handler)
			assert.NotPanics(t, func() {
				h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders", nil))
			})
		})
	}
}

func TestTelemetry_Exceptions(t *testing.T) {
	t.Parallel()

	t.Run("given handler panics, when recovered outside, then event records location and reason", func(t *testing.T) {
		sink := &recordingSink{}
		h := httpserver.Chain(
			httpserver.Recovery(zerolog.Nop()),
			httpserver.Telemetry(remoteTelemetry(sink)),
		)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		req := httptest.NewRequest(http.MethodGet, "/explode", nil)
		req.Header.Set(httpserver.CorrelationIDHeader, "c-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		e := sink.last(t)
		assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
		require.NotNil(t, e.Exception)
		assert.Equal(t, "boom", e.Exception.Message)
		assert.Positive(t, e.Exception.LineNumber)
		assert.Contains(t, e.Exception.FileName, "telemetry_test.go")
		assert.True(t, strings.HasPrefix(e.ErrorReason, "Internal Server Error - "))

		sink.mu.Lock()
		defer sink.mu.Unlock()
		require.Len(t, sink.exceptions, 1)
		assert.Equal(t, map[string]string{
			"RequestPath":     "/explode",
			"RequestMethod":   http.MethodGet,
			"ClientIpAddress": "192.0.2.1",
			"CorrelationId":   "c-1",
		}, sink.exceptions[0].tags)
	})

	t.Run("given handler records an error, when it answers 502, then event carries it", func(t *testing.T) {
		sink := &recordingSink{}
		h := httpserver.Telemetry(remoteTelemetry(sink))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			telemetry.RecordError(r.Context(), errors.New("upstream refused"))
			w.WriteHeader(http.StatusBadGateway)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/proxy", nil))

		e := sink.last(t)
		require.NotNil(t, e.Exception)
		assert.Equal(t, "upstream refused", e.Exception.Message)
		assert.Equal(t, "Bad Gateway - Invalid response from upstream server", e.ErrorReason)
	})

	t.Run("given request cancelled mid-handler, when dispatched, then event carries context.Canceled and the partial body", func(t *testing.T) {
		sink := &recordingSink{}
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		h := httpserver.Telemetry(remoteTelemetry(sink))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("part"))
			cancel()
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil).WithContext(ctx)
		h.ServeHTTP(httptest.NewRecorder(), req)

		e := sink.last(t)
		assert.Equal(t, http.StatusOK, e.StatusCode)
		assert.Equal(t, "part", e.ResponseBody)
		require.NotNil(t, e.Exception)
		assert.Equal(t, context.Canceled.Error(), e.Exception.Message)
	})

	t.Run("given request cancelled mid-handler, when the same client retries, then the cancelled request counted against the quota", func(t *testing.T) {
		sink := &recordingSink{}
		clock := newFakeClock()
		rl := httpserver.DefaultRateLimitConfig()
		rl.PermitLimit = 1
		rl.Window = time.Minute
		rl.Now = clock.Now
		rl.Store = ratelimit.NewMemoryStore(ratelimit.WithNow(clock.Now), ratelimit.WithSweepInterval(0))

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		h := httpserver.Chain(
			httpserver.Telemetry(remoteTelemetry(sink)),
			httpserver.RateLimit(rl),
		)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("part"))
			cancel()
		}))

		first := httptest.NewRequest(http.MethodGet, "/api/orders", nil).WithContext(ctx)
		first.RemoteAddr = "10.0.0.7:40000"
		h.ServeHTTP(httptest.NewRecorder(), first)

		retry := serveFrom(h, "10.0.0.7", "/api/orders")

		assert.Equal(t, http.StatusTooManyRequests, retry.Code)
		events := sink.all()
		require.Len(t, events, 2)
		require.NotNil(t, events[0].Exception)
		assert.Equal(t, context.Canceled.Error(), events[0].Exception.Message)
		assert.Equal(t, "true", events[1].Tags["RateLimited"])
	})

	t.Run("given exceptions disabled, when handler panics, then event has status only", func(t *testing.T) {
		sink := &recordingSink{}
		cfg := remoteTelemetry(sink)
		cfg.LogExceptions = false
		h := httpserver.Chain(
			httpserver.Recovery(zerolog.Nop()),
			httpserver.Telemetry(cfg),
		)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("quiet")
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		e := sink.last(t)
		assert.Nil(t, e.Exception)
		assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
	})
}

func TestTelemetry_Principal(t *testing.T) {
	t.Parallel()

	t.Run("given ServiceAuth inside telemetry, when authenticated, then event carries the caller", func(t *testing.T) {
		sink := &recordingSink{}
		validator := httpserver.NewMemoryCredentialValidator(map[string]string{"billing": "s3cret"})
		h := httpserver.Chain(
			httpserver.Telemetry(remoteTelemetry(sink)),
			httpserver.ServiceAuth(httpserver.ServiceAuthConfig{Validator: validator}),
		)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/internal", nil)
		req.Header.Set("Client-ID", "billing")
		req.Header.Set("Pass-Key", "s3cret")
		h.ServeHTTP(httptest.NewRecorder(), req)

		e := sink.last(t)
		require.NotNil(t, e.User)
		assert.True(t, e.User.IsAuthenticated)
		assert.Equal(t, "billing", e.User.UserID)
		assert.Equal(t, httpserver.ServiceAuthType, e.User.AuthenticationType)
	})

	t.Run("given anonymous request, when captured, then user is nil", func(t *testing.T) {
		sink := &recordingSink{}
		httpserver.Telemetry(remoteTelemetry(sink))(okHandler()).ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Nil(t, sink.last(t).User)
	})
}

func TestTelemetryMetrics(t *testing.T) {
	t.Parallel()

	t.Run("given metrics, when a request is rejected, then counters record it", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		metrics, err := httpserver.NewTelemetryMetrics(httpserver.MetricsConfig{MeterProvider: provider})
		require.NoError(t, err)

		sink := &recordingSink{}
		tcfg := remoteTelemetry(sink)
		tcfg.Metrics = metrics
		rcfg := httpserver.DefaultRateLimitConfig()
		rcfg.PermitLimit = 1

		h := httpserver.Chain(httpserver.Telemetry(tcfg), httpserver.RateLimit(rcfg))(okHandler())
		serveFrom(h, "10.0.0.1", "/")
		serveFrom(h, "10.0.0.1", "/")

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))

		assert.Equal(t, int64(1), sumCounter(t, rm, "http.server.rate_limited"))
		assert.Equal(t, int64(2), sumCounter(t, rm, "telemetry.events"))
		assert.Equal(t, uint64(2), histogramCount(t, rm, "http.server.request.duration"))
	})

	t.Run("given noop meter provider, when requests flow, then metrics are accepted", func(t *testing.T) {
		metrics, err := httpserver.NewTelemetryMetrics(httpserver.MetricsConfig{MeterProvider: noop.NewMeterProvider()})
		require.NoError(t, err)

		cfg := remoteTelemetry(&recordingSink{})
		cfg.Metrics = metrics
		rec := httptest.NewRecorder()
		httpserver.Telemetry(cfg)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("given nil metrics, when requests flow, then nothing panics", func(t *testing.T) {
		h := httpserver.Telemetry(remoteTelemetry(&recordingSink{}))(okHandler())
		assert.NotPanics(t, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return metricdata.Metrics{}
}

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	sum, ok := findMetric(t, rm, name).Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %q is not an int64 sum", name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	hist, ok := findMetric(t, rm, name).Data.(metricdata.Histogram[float64])
	require.True(t, ok, "metric %q is not a float64 histogram", name)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	return total
}
