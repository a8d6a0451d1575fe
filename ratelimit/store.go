package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by stores that lost an optimistic-concurrency race
// twice in a row. Callers treat it like any other store failure.
var ErrConflict = errors.New("ratelimit: concurrent update conflict")

// QuotaInfo is a read-only projection of a key's counter in the current window.
type QuotaInfo struct {
	// RequestCount is the number of admitted requests so far in the window.
	RequestCount int

	// WindowStart is the start of the current window.
	WindowStart time.Time

	// LimitExceeded reports whether the counter has reached its permit limit.
	LimitExceeded bool
}

// Entry is the state a store keeps per (key, window).
type Entry struct {
	Key           string
	WindowStart   time.Time
	Window        time.Duration
	RequestCount  int
	PermitLimit   int
	CreatedAt     time.Time
	LastRequestAt time.Time
}

// Elapsed reports whether the entry's window has ended at now.
func (e *Entry) Elapsed(now time.Time) bool {
	return !now.Before(WindowEnd(e.WindowStart, e.Window))
}

// Store is the counter storage used by the rate limiter.
//
// Implementations must be safe for concurrent use. Within one window no
// more than limit calls to Increment for the same key may return true.
type Store interface {
	// Probe observes the current window for key without mutating it.
	// A missing or elapsed entry yields a zero count for the current window.
	Probe(ctx context.Context, key string, window time.Duration) (QuotaInfo, error)

	// Increment counts one request for key in the current window and
	// reports whether the request fits under limit.
	Increment(ctx context.Context, key string, window time.Duration, limit int) (bool, error)

	// Sweep removes entries that are no longer needed.
	Sweep(ctx context.Context) error
}

// emptyInfo is the projection for a key with no live counter.
func emptyInfo(now time.Time, window time.Duration) QuotaInfo {
	return QuotaInfo{WindowStart: WindowStart(now, window)}
}
