package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kroma-labs/sentinel-guard/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubStore returns fixed results and counts calls.
type stubStore struct {
	admitted bool
	err      error
	sweeps   atomic.Int32
}

func (s *stubStore) Probe(context.Context, string, time.Duration) (ratelimit.QuotaInfo, error) {
	return ratelimit.QuotaInfo{}, s.err
}

func (s *stubStore) Increment(context.Context, string, time.Duration, int) (bool, error) {
	return s.admitted, s.err
}

func (s *stubStore) Sweep(context.Context) error {
	s.sweeps.Add(1)
	return s.err
}
