package httpserver_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/kroma-labs/sentinel-guard/filelog"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		configFunc          func() httpserver.Config
		wantAddr            string
		wantReadTimeout     time.Duration
		wantWriteTimeout    time.Duration
		wantIdleTimeout     time.Duration
		wantShutdownTimeout time.Duration
	}{
		{
			name:                "given no options, then uses default timeout",
			configFunc:          httpserver.DefaultConfig,
			wantAddr:            ":8080",
			wantReadTimeout:     15 * time.Second,
			wantWriteTimeout:    15 * time.Second,
			wantIdleTimeout:     60 * time.Second,
			wantShutdownTimeout: 10 * time.Second,
		},
		{
			name:                "given production config, then uses hardened timeouts",
			configFunc:          httpserver.ProductionConfig,
			wantAddr:            ":8080",
			wantReadTimeout:     10 * time.Second,
			wantWriteTimeout:    10 * time.Second,
			wantIdleTimeout:     30 * time.Second,
			wantShutdownTimeout: 25 * time.Second,
		},
		{
			name:                "given development config, then uses lenient timeouts",
			configFunc:          httpserver.DevelopmentConfig,
			wantAddr:            ":8080",
			wantReadTimeout:     0,
			wantWriteTimeout:    0,
			wantIdleTimeout:     120 * time.Second,
			wantShutdownTimeout: 3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.configFunc()

			assert.Equal(t, tt.wantAddr, cfg.Addr)
			assert.Equal(t, tt.wantReadTimeout, cfg.ReadTimeout)
			assert.Equal(t, tt.wantWriteTimeout, cfg.WriteTimeout)
			assert.Equal(t, tt.wantIdleTimeout, cfg.IdleTimeout)
			assert.Equal(t, tt.wantShutdownTimeout, cfg.ShutdownTimeout)
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	t.Parallel()

	t.Run("given ping endpoint, then returns pong", func(t *testing.T) {
		health := httpserver.NewHealthHandler(httpserver.WithVersion("1.0.0"))

		rec := httptest.NewRecorder()
		health.PingHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":{"status":"pong"}}`, rec.Body.String())
	})
}

func TestHealthHandler_Checks(t *testing.T) {
	t.Parallel()

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) httpserver.Response[httpserver.HealthResponse] {
		t.Helper()
		var resp httpserver.Response[httpserver.HealthResponse]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	t.Run("given no checks, when probed, then ok", func(t *testing.T) {
		health := httpserver.NewHealthHandler(httpserver.WithVersion("1.2.3"))

		rec := httptest.NewRecorder()
		health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, "ok", resp.Data.Status)
		assert.Equal(t, "1.2.3", resp.Data.Version)
		assert.Empty(t, resp.Errors)
	})

	t.Run("given a failing check, when probed twice, then 503 with consecutive failures", func(t *testing.T) {
		health := httpserver.NewHealthHandler()
		health.AddCheck("cache", func(context.Context) error { return nil })
		health.AddCheck("db", func(context.Context) error { return errors.New("connection refused") })

		var rec *httptest.ResponseRecorder
		for range 2 {
			rec = httptest.NewRecorder()
			health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		}

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, "fail", resp.Data.Status)
		assert.Equal(t, "ok", resp.Data.Checks["cache"].Status)
		assert.Equal(t, "fail", resp.Data.Checks["db"].Status)
		assert.Equal(t, 2, resp.Data.Checks["db"].ConsecutiveFailures)
		assert.Equal(t, []httpserver.Error{{Field: "db", Message: "connection refused"}}, resp.Errors)
	})

	t.Run("given a slow check, when probed, then it is bounded by the check timeout", func(t *testing.T) {
		health := httpserver.NewHealthHandler(httpserver.WithCheckTimeout(20 * time.Millisecond))
		health.AddCheck("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		rec := httptest.NewRecorder()
		health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, context.DeadlineExceeded.Error(), decode(t, rec).Data.Checks["slow"].Message)
	})

	t.Run("given simultaneous probes, when checks are slow, then they share one run", func(t *testing.T) {
		var calls atomic.Int32
		health := httpserver.NewHealthHandler()
		health.AddCheck("db", func(context.Context) error {
			calls.Add(1)
			time.Sleep(50 * time.Millisecond)
			return nil
		})

		var wg sync.WaitGroup
		codes := make([]int, 5)
		for i := range codes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := httptest.NewRecorder()
				health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
				codes[i] = rec.Code
			}()
		}
		wg.Wait()

		assert.Equal(t, []int{200, 200, 200, 200, 200}, codes)
		assert.Equal(t, int32(1), calls.Load(), "simultaneous probes should share one run")
	})

	tests := []struct {
		name     string
		store    func(t *testing.T) ratelimit.Store
		wantCode int
	}{
		{
			name:     "given memory store, when checked, then ok",
			store:    func(*testing.T) ratelimit.Store { return ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(0)) },
			wantCode: http.StatusOK,
		},
		{
			name: "given reachable redis store, when checked, then ok",
			store: func(t *testing.T) ratelimit.Store {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				return ratelimit.NewRedisStore(client)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "given instrumented redis store that is down, when checked, then 503",
			store: func(t *testing.T) ratelimit.Store {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
				t.Cleanup(func() { _ = client.Close() })
				mr.Close()
				collector := ratelimit.NewCollector(ratelimit.WithRegisterer(prometheus.NewRegistry()))
				return ratelimit.Instrument(ratelimit.NewRedisStore(client), "redis", collector)
			},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "given failing store, when checked, then 503",
			store:    func(*testing.T) ratelimit.Store { return failingStore{} },
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := httpserver.NewHealthHandler()
			health.AddCheck("ratelimit-store", httpserver.StoreCheck(tt.store(t)))

			rec := httptest.NewRecorder()
			health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

// guardedServer builds a server with telemetry and a 3-per-minute limiter
// on a fake clock, mirroring a typical production setup.
func guardedServer(t *testing.T, clock *fakeClock, handler http.Handler) (*httpserver.Server, *recordingSink, *filelog.Writer) {
	t.Helper()

	fcfg := filelog.DefaultConfig()
	fcfg.Directory = t.TempDir()
	writer := filelog.New(fcfg)
	t.Cleanup(func() { _ = writer.Close() })

	sink := &recordingSink{}
	tcfg := httpserver.DefaultTelemetryConfig()
	tcfg.Sink = sink
	tcfg.Writer = writer

	rcfg := httpserver.DefaultRateLimitConfig()
	rcfg.PermitLimit = 3
	rcfg.Window = 60 * time.Second
	rcfg.Now = clock.Now
	rcfg.Store = ratelimit.NewMemoryStore(ratelimit.WithNow(clock.Now), ratelimit.WithSweepInterval(0))

	var health *httpserver.HealthHandler
	mux := http.NewServeMux()
	mux.Handle("/api/", handler)

	server := httpserver.New(
		httpserver.WithServiceName("orders"),
		httpserver.WithLogger(zerolog.Nop()),
		httpserver.WithTelemetry(tcfg),
		httpserver.WithRateLimit(rcfg),
		httpserver.WithHealth(&health, "1.0.0"),
		httpserver.WithHandler(mux),
	)
	mux.Handle("/health", health.Handler())
	return server, sink, writer
}

func TestServer_EndToEnd(t *testing.T) {
	t.Parallel()

	var throwLine int
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/explode" {
			_, _, throwLine, _ = runtime.Caller(0)
			panic("boom")
		}
		w.WriteHeader(http.StatusOK)
	})

	t.Run("given limit 3 per minute, when 5 requests arrive, then the last two are rejected until the window rolls", func(t *testing.T) {
		clock := newFakeClock()
		server, _, _ := guardedServer(t, clock, api)
		h := server.Handler()

		wantCodes := []int{http.StatusOK, http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}
		for i, want := range wantCodes {
			rec := serveFrom(h, "1.2.3.4", "/api/test")
			require.Equal(t, want, rec.Code, "request %d", i+1)
			if want != http.StatusTooManyRequests {
				continue
			}
			assert.Equal(t, "0", rec.Header().Get(httpserver.HeaderRateLimitRemaining))
			var body httpserver.RateLimitResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.GreaterOrEqual(t, body.RetryAfter, 0)
			assert.LessOrEqual(t, body.RetryAfter, 60)
		}

		clock.Advance(61 * time.Second)
		rec := serveFrom(h, "1.2.3.4", "/api/test")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get(httpserver.HeaderRateLimitRemaining))
	})

	t.Run("given /health, when probed 100 times, then none are limited or captured", func(t *testing.T) {
		server, sink, _ := guardedServer(t, newFakeClock(), api)
		h := server.Handler()

		for range 100 {
			rec := serveFrom(h, "1.2.3.4", "/health")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get(httpserver.HeaderRateLimitLimit))
			assert.Empty(t, rec.Header().Get(httpserver.HeaderRateLimitRemaining))
			assert.Empty(t, rec.Header().Get(httpserver.HeaderRateLimitReset))
			assert.Empty(t, rec.Header().Get(httpserver.CorrelationIDHeader))
		}
		assert.Empty(t, sink.all())
	})

	t.Run("given sensitive query, when captured, then it is masked", func(t *testing.T) {
		server, sink, _ := guardedServer(t, newFakeClock(), api)

		serveFrom(server.Handler(), "1.2.3.4", "/api/test/query?token=abc&id=42&password=hunter2")

		assert.Equal(t, "token=***MASKED***&id=42&password=***MASKED***", sink.last(t).QueryString)
	})

	t.Run("given client correlation ID, when served, then it is echoed and written to the log file", func(t *testing.T) {
		server, _, writer := guardedServer(t, newFakeClock(), api)

		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.Header.Set(httpserver.CorrelationIDHeader, "fixed-xyz")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "fixed-xyz", rec.Header().Get(httpserver.CorrelationIDHeader))
		content, err := os.ReadFile(writer.Path())
		require.NoError(t, err)
		assert.Contains(t, string(content), "CorrelationId: fixed-xyz")
	})

	t.Run("given handler panics, when served, then client gets 500 and the event locates the panic", func(t *testing.T) {
		server, sink, writer := guardedServer(t, newFakeClock(), api)

		rec := serveFrom(server.Handler(), "1.2.3.4", "/api/explode")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		e := sink.last(t)
		require.NotNil(t, e.Exception)
		assert.Equal(t, "string", e.Exception.Type)
		assert.Equal(t, "boom", e.Exception.Message)
		assert.NotEmpty(t, e.Exception.StackTrace)
		assert.Equal(t, throwLine+1, e.Exception.LineNumber)

		content, err := os.ReadFile(writer.Path())
		require.NoError(t, err)
		assert.Contains(t, string(content), "ErrorReason: Internal Server Error - ")
		assert.Contains(t, string(content), "ExceptionMessage: boom")
	})

	t.Run("given rejected request, when captured, then the event is tagged", func(t *testing.T) {
		server, sink, _ := guardedServer(t, newFakeClock(), api)
		h := server.Handler()

		for range 4 {
			serveFrom(h, "5.6.7.8", "/api/test")
		}

		e := sink.last(t)
		assert.Equal(t, http.StatusTooManyRequests, e.StatusCode)
		assert.Equal(t, "true", e.Tags["RateLimited"])
		assert.Equal(t, "Too Many Requests - Rate limit exceeded", e.ErrorReason)
	})
}

func TestServer_LoggerInheritance(t *testing.T) {
	t.Parallel()

	handBuiltLimit := func(logger zerolog.Logger) httpserver.Option {
		return httpserver.WithRateLimit(httpserver.RateLimitConfig{
			Enabled:     true,
			PermitLimit: 1,
			Window:      time.Minute,
			Logger:      logger,
		})
	}

	tests := []struct {
		name       string
		opts       func(own *bytes.Buffer) []httpserver.Option
		wantServer []string
		wantOwn    []string
	}{
		{
			name: "given hand-built rate limit config, when a request is rejected, then the server logger records it",
			opts: func(*bytes.Buffer) []httpserver.Option {
				return []httpserver.Option{handBuiltLimit(zerolog.Logger{})}
			},
			wantServer: []string{"rate limit exceeded"},
		},
		{
			name: "given hand-built telemetry config, when a request completes, then the server logger records it",
			opts: func(*bytes.Buffer) []httpserver.Option {
				return []httpserver.Option{httpserver.WithTelemetry(httpserver.TelemetryConfig{
					Enabled:      true,
					LogRequests:  true,
					LogResponses: true,
					Destination:  telemetry.DestinationLocal,
				})}
			},
			wantServer: []string{"request completed"},
		},
		{
			name: "given default config with Nop logger, when a request is rejected, then the server logger records it",
			opts: func(*bytes.Buffer) []httpserver.Option {
				cfg := httpserver.DefaultRateLimitConfig()
				cfg.PermitLimit = 1
				return []httpserver.Option{httpserver.WithRateLimit(cfg)}
			},
			wantServer: []string{"rate limit exceeded"},
		},
		{
			name: "given a logger of its own, when a request is rejected, then the middleware keeps it",
			opts: func(own *bytes.Buffer) []httpserver.Option {
				return []httpserver.Option{handBuiltLimit(zerolog.New(own))}
			},
			wantOwn: []string{"rate limit exceeded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var serverLogs, ownLogs bytes.Buffer
			opts := append([]httpserver.Option{
				httpserver.WithLogger(zerolog.New(&serverLogs)),
				httpserver.WithHandler(okHandler()),
			}, tt.opts(&ownLogs)...)
			h := httpserver.New(opts...).Handler()

			serveFrom(h, "10.0.0.9", "/api/orders")
			serveFrom(h, "10.0.0.9", "/api/orders")

			for _, want := range tt.wantServer {
				assert.Contains(t, serverLogs.String(), want)
			}
			for _, want := range tt.wantOwn {
				assert.Contains(t, ownLogs.String(), want)
				assert.NotContains(t, serverLogs.String(), want)
			}
		})
	}
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("given no handler, when serving, then returns an error", func(t *testing.T) {
		server := httpserver.New(httpserver.WithLogger(zerolog.Nop()))

		err := server.ListenAndServe(t.Context())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler is required")
	})

	t.Run("given registered services, when context is cancelled, then all are closed", func(t *testing.T) {
		var closed sync.Map
		failure := errors.New("flush failed")

		server := httpserver.New(
			httpserver.WithConfig(httpserver.Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}),
			httpserver.WithLogger(zerolog.Nop()),
			httpserver.WithHandler(okHandler()),
			httpserver.WithService("store", func(ctx context.Context) error {
				closed.Store("store", ctx.Err())
				return nil
			}),
			httpserver.WithService("sink", func(context.Context) error {
				closed.Store("sink", nil)
				return failure
			}),
		)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- server.ListenAndServe(ctx) }()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, failure)
			assert.Contains(t, err.Error(), "close sink")
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}

		storeErr, ok := closed.Load("store")
		require.True(t, ok)
		assert.Nil(t, storeErr, "services get a live shutdown context")
		_, ok = closed.Load("sink")
		assert.True(t, ok)
	})

	t.Run("given Shutdown, when called directly, then services are closed", func(t *testing.T) {
		var calls int
		server := httpserver.New(
			httpserver.WithLogger(zerolog.Nop()),
			httpserver.WithHandler(okHandler()),
			httpserver.WithService("writer", func(context.Context) error {
				calls++
				return nil
			}),
		)

		require.NoError(t, server.Shutdown(t.Context()))
		assert.Equal(t, 1, calls)
	})

	t.Run("given options, when built, then accessors reflect them", func(t *testing.T) {
		server := httpserver.New(
			httpserver.WithServiceName("orders"),
			httpserver.WithLogger(zerolog.Nop()),
		)

		assert.Equal(t, "orders", server.ServiceName())
		assert.Equal(t, ":8080", server.Addr())
		assert.Nil(t, server.Handler())
	})
}
