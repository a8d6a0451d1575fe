package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often MemoryStore evicts elapsed windows.
const DefaultSweepInterval = 5 * time.Minute

// MemoryStore is a process-local Store.
//
// Counters live in a sync.Map keyed by "{key}:{window seconds}:{window start}".
// Entries are immutable; every mutation swaps in a new entry with
// CompareAndSwap, so no lock is held while counting.
//
// A background goroutine sweeps elapsed entries until Close is called.
type MemoryStore struct {
	entries sync.Map // string -> *Entry

	now           func() time.Time
	logger        zerolog.Logger
	sweepInterval time.Duration

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithNow overrides the clock. Useful in tests.
func WithNow(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithSweepInterval sets the eviction period. A non-positive interval
// disables the background sweeper; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.sweepInterval = d
	}
}

// WithMemoryLogger sets the logger used by the sweeper.
func WithMemoryLogger(l zerolog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.logger = l
	}
}

// NewMemoryStore creates a MemoryStore and starts its sweeper.
//
// Example:
//
//	store := ratelimit.NewMemoryStore(
//	    ratelimit.WithMemoryLogger(logger),
//	)
//	defer store.Close()
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:           time.Now,
		logger:        zerolog.Nop(),
		sweepInterval: DefaultSweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

// Probe implements Store.
func (s *MemoryStore) Probe(_ context.Context, key string, window time.Duration) (QuotaInfo, error) {
	now := s.now()
	start := WindowStart(now, window)

	v, ok := s.entries.Load(memoryKey(key, window, start))
	if !ok {
		return emptyInfo(now, window), nil
	}
	e := v.(*Entry)
	if e.Elapsed(now) {
		return emptyInfo(now, window), nil
	}

	return QuotaInfo{
		RequestCount:  e.RequestCount,
		WindowStart:   e.WindowStart,
		LimitExceeded: e.RequestCount >= e.PermitLimit,
	}, nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	now := s.now()
	start := WindowStart(now, window)
	k := memoryKey(key, window, start)

	fresh := &Entry{
		Key:           key,
		WindowStart:   start,
		Window:        window,
		RequestCount:  1,
		PermitLimit:   limit,
		CreatedAt:     now,
		LastRequestAt: now,
	}

	for {
		v, loaded := s.entries.LoadOrStore(k, fresh)
		if !loaded {
			return true, nil
		}

		cur := v.(*Entry)
		if cur.Elapsed(now) {
			if s.entries.CompareAndSwap(k, cur, fresh) {
				return true, nil
			}
			continue
		}

		if cur.RequestCount >= limit {
			return false, nil
		}

		next := *cur
		next.RequestCount++
		next.LastRequestAt = now
		if s.entries.CompareAndSwap(k, cur, &next) {
			return true, nil
		}
	}
}

// Sweep implements Store by evicting every entry whose window has elapsed.
func (s *MemoryStore) Sweep(_ context.Context) error {
	now := s.now()
	evicted := 0

	s.entries.Range(func(k, v any) bool {
		if e := v.(*Entry); e.Elapsed(now) {
			if s.entries.CompareAndDelete(k, e) {
				evicted++
			}
		}
		return true
	})

	if evicted > 0 {
		s.logger.Debug().
			Int("evicted", evicted).
			Msg("rate limit entries swept")
	}
	return nil
}

// Len returns the number of live entries, elapsed or not.
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.Sweep(context.Background())
		}
	}
}

func memoryKey(key string, window time.Duration, start time.Time) string {
	return key + ":" + strconv.FormatInt(int64(window/time.Second), 10) + ":" +
		start.Format("20060102150405")
}
