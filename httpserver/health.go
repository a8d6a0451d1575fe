package httpserver

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// HealthCheck reports whether a dependency is usable. Return nil when healthy.
type HealthCheck func(ctx context.Context) error

// CheckResult contains the result of a single health check.
type CheckResult struct {
	Status              string `json:"status"`
	Latency             string `json:"latency"`
	Message             string `json:"message,omitempty"`
	LastChecked         string `json:"last_checked"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
}

// HealthResponse contains the full health response data.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime,omitempty"`
	Hostname  string                 `json:"hostname,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// PingResponse contains the ping response data.
type PingResponse struct {
	Status string `json:"status"`
}

type checkState struct {
	check               HealthCheck
	consecutiveFailures int
}

// HealthHandler serves /health and /ping.
//
// /health runs every registered check concurrently and answers 200 when
// all pass, 503 otherwise. Probes that arrive while checks are running
// share that run's results. Both middlewares exclude /health by default, so
// probes neither consume quota nor produce telemetry.
//
//	health := httpserver.NewHealthHandler(httpserver.WithVersion("1.0.0"))
//	health.AddCheck("ratelimit-store", httpserver.StoreCheck(store))
//	mux.Handle("/health", health.Handler())
type HealthHandler struct {
	serviceName string
	version     string
	timeout     time.Duration
	startTime   time.Time
	hostname    string

	mu     sync.Mutex
	checks map[string]*checkState
	flight singleflight.Group
}

type checkRun struct {
	at      time.Time
	results map[string]CheckResult
	errs    []Error
}

// HealthOption configures the HealthHandler.
type HealthOption func(*HealthHandler)

// withHealthServiceName is applied by the server via WithHealth.
func withHealthServiceName(name string) HealthOption {
	return func(h *HealthHandler) {
		h.serviceName = name
	}
}

// WithVersion sets the version for health responses.
func WithVersion(version string) HealthOption {
	return func(h *HealthHandler) {
		h.version = version
	}
}

// WithCheckTimeout bounds each check. Default: 2s.
func WithCheckTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		h.timeout = d
	}
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	hostname, _ := os.Hostname()

	h := &HealthHandler{
		serviceName: "unknown",
		version:     "0.0.0",
		timeout:     2 * time.Second,
		startTime:   time.Now(),
		hostname:    hostname,
		checks:      make(map[string]*checkState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck registers a named check, replacing any check with the same name.
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = &checkState{check: check}
}

// StoreCheck returns a check for a rate limit store. Stores with a
// Ping(ctx) error method are pinged; others answer a probe.
func StoreCheck(store ratelimit.Store) HealthCheck {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	type unwrapper interface {
		Unwrap() ratelimit.Store
	}

	return func(ctx context.Context) error {
		s := store
		for {
			if p, ok := s.(pinger); ok {
				return p.Ping(ctx)
			}
			u, ok := s.(unwrapper)
			if !ok {
				break
			}
			s = u.Unwrap()
		}
		_, err := store.Probe(ctx, "health-check", time.Minute)
		return err
	}
}

// PingHandler answers 200 without running checks.
func (h *HealthHandler) PingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, http.StatusOK, PingResponse{Status: "pong"}, "")
	})
}

// Handler serves the aggregate health endpoint.
func (h *HealthHandler) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Shared runs outlive the first caller's request; checks are bounded by h.timeout.
		ctx := context.WithoutCancel(r.Context())
		v, _, _ := h.flight.Do("checks", func() (any, error) {
			now := time.Now()
			results, errs := h.run(ctx, now)
			return checkRun{at: now, results: results, errs: errs}, nil
		})
		run := v.(checkRun)

		status, statusCode, message := "ok", http.StatusOK, "all checks passed"
		if len(run.errs) > 0 {
			status, statusCode, message = "fail", http.StatusServiceUnavailable, "one or more checks failed"
		}

		WriteJSON(w, statusCode, Response[HealthResponse]{
			Data: HealthResponse{
				Status:    status,
				Service:   h.serviceName,
				Version:   h.version,
				Uptime:    time.Since(h.startTime).Round(time.Second).String(),
				Hostname:  h.hostname,
				Timestamp: run.at.UTC().Format(time.RFC3339),
				Checks:    run.results,
			},
			Errors:  run.errs,
			Message: message,
		})
	})
}

func (h *HealthHandler) run(ctx context.Context, now time.Time) (map[string]CheckResult, []Error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(h.checks))
		errs    []Error
		g       errgroup.Group
	)
	for name, state := range h.checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := state.check(checkCtx)
			result := CheckResult{
				Status:      "ok",
				Latency:     time.Since(start).String(),
				Message:     "connected",
				LastChecked: now.UTC().Format(time.RFC3339),
			}
			if err != nil {
				state.consecutiveFailures++
				result.Status = "fail"
				result.Message = err.Error()
				result.ConsecutiveFailures = state.consecutiveFailures
			} else {
				state.consecutiveFailures = 0
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = result
			if err != nil {
				errs = append(errs, Error{Field: name, Message: err.Error()})
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
