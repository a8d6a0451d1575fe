package httpserver

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/rs/zerolog"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimitConfig configures the fixed-window rate limiting middleware.
//
// Start from DefaultRateLimitConfig; the zero value is disabled.
type RateLimitConfig struct {
	// Enabled turns the limiter on.
	// Default: true
	Enabled bool

	// PermitLimit is the number of requests admitted per key per window.
	// Default: 100
	PermitLimit int

	// Window is the fixed window length. It must be a whole number of seconds.
	// Default: 60s
	Window time.Duration

	// Store keeps the per-window counters. If nil, an in-memory store is created.
	Store ratelimit.Store

	// ExcludedPaths are path prefixes, matched case-insensitively, that bypass the limiter.
	// Default: ["/health", "/swagger"]
	ExcludedPaths []string

	// StatusCode is written when a request is rejected.
	// Default: 429
	StatusCode int

	// Message is the human-readable part of the rejection body.
	// Default: "Rate limit exceeded. Please try again later."
	Message string

	// KeyFunc groups requests into quotas.
	// Default: KeyFuncByIP()
	KeyFunc KeyFunc

	// Logger receives rejections (warn) and store failures (error).
	// Under Server, a zero or Nop logger inherits the server's.
	Logger zerolog.Logger

	// Now is the clock used for Retry-After arithmetic. Default: time.Now.
	Now func() time.Time
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       true,
		PermitLimit:   100,
		Window:        time.Minute,
		ExcludedPaths: []string{"/health", "/swagger"},
		StatusCode:    http.StatusTooManyRequests,
		Message:       "Rate limit exceeded. Please try again later.",
		KeyFunc:       KeyFuncByIP(),
		Logger:        zerolog.Nop(),
		Now:           time.Now,
	}
}

// RateLimitResponse is the body written on rejection.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimit returns middleware enforcing a fixed-window quota per key.
//
// Every limited response carries X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset (an HTTP date). Rejected requests get StatusCode
// with a JSON RateLimitResponse and never reach the next handler.
//
// Store failures are logged and the request is admitted.
//
// RateLimit panics if Window is not a positive whole number of seconds.
//
// Example:
//
//	cfg := httpserver.DefaultRateLimitConfig()
//	cfg.PermitLimit = 3
//	cfg.Store = ratelimit.NewMemoryStore()
//	handler := httpserver.RateLimit(cfg)(mux)
func RateLimit(cfg RateLimitConfig) Middleware {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	def := DefaultRateLimitConfig()
	if cfg.PermitLimit <= 0 {
		cfg.PermitLimit = def.PermitLimit
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if err := ratelimit.ValidateWindow(cfg.Window); err != nil {
		panic("httpserver: " + err.Error())
	}
	if cfg.StatusCode == 0 {
		cfg.StatusCode = def.StatusCode
	}
	if cfg.Message == "" {
		cfg.Message = def.Message
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = def.KeyFunc
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Store == nil {
		cfg.Store = ratelimit.NewMemoryStore(ratelimit.WithNow(cfg.Now))
	}
	excluded := lowerAll(cfg.ExcludedPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasPrefixFold(r.URL.Path, excluded) {
				next.ServeHTTP(w, r)
				return
			}

			key := cfg.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			admitted, err := cfg.Store.Increment(ctx, key, cfg.Window, cfg.PermitLimit)
			if err != nil {
				cfg.Logger.Error().Err(err).Str("key", key).Msg("rate limit store increment failed, admitting request")
				next.ServeHTTP(w, r)
				return
			}

			info, err := cfg.Store.Probe(ctx, key, cfg.Window)
			if err != nil {
				cfg.Logger.Error().Err(err).Str("key", key).Msg("rate limit store probe failed, admitting request")
				next.ServeHTTP(w, r)
				return
			}

			reset := ratelimit.WindowEnd(info.WindowStart, cfg.Window)
			h := w.Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(cfg.PermitLimit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(max(0, cfg.PermitLimit-info.RequestCount)))
			h.Set(HeaderRateLimitReset, reset.UTC().Format(http.TimeFormat))

			if admitted {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(0, int(math.Ceil(reset.Sub(cfg.Now()).Seconds())))
			cfg.Logger.Warn().
				Str("key", key).
				Str("path", r.URL.Path).
				Int("request_count", info.RequestCount).
				Int("limit", cfg.PermitLimit).
				Int("retry_after", retryAfter).
				Msg("rate limit exceeded")
			telemetry.SetTag(ctx, "RateLimited", "true")

			h.Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, cfg.StatusCode, RateLimitResponse{
				Error:      "Rate limit exceeded",
				Message:    cfg.Message,
				RetryAfter: retryAfter,
			})
		})
	}
}

// RateLimitByIP returns a per-IP limiter admitting limit requests per window.
func RateLimitByIP(store ratelimit.Store, limit int, window time.Duration) Middleware {
	cfg := DefaultRateLimitConfig()
	cfg.Store = store
	cfg.PermitLimit = limit
	cfg.Window = window
	return RateLimit(cfg)
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func hasPrefixFold(path string, lowerPrefixes []string) bool {
	if len(lowerPrefixes) == 0 {
		return false
	}
	path = strings.ToLower(path)
	for _, p := range lowerPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
