// Package ratelimit implements fixed-window request quotas keyed by an
// opaque client identifier (usually the client IP).
//
// # Overview
//
// Time is cut into aligned windows of length W. Every key owns one counter
// per window. The first request in a window creates the counter with a count
// of 1; subsequent requests increment it while it is below the limit L.
// A request is admitted iff its own call created or incremented the counter,
// so at most L requests are admitted per key per window.
//
// # Stores
//
// Three Store implementations are provided:
//
//   - MemoryStore: process-local, lock-free map with a periodic sweeper
//   - SQLStore: relational table with optimistic concurrency and a single retry
//   - RedisStore: Lua script against a shared Redis, counters expire with the window
//
// The store chosen at startup must stay the same for the lifetime of the
// process; mixing stores splits the counters.
//
// # Usage
//
//	store := ratelimit.NewMemoryStore()
//	defer store.Close()
//
//	admitted, err := store.Increment(ctx, "1.2.3.4", time.Minute, 100)
//	if err != nil {
//	    // fail open
//	}
//	info, _ := store.Probe(ctx, "1.2.3.4", time.Minute)
//
// Wrap a store with Instrument to record Prometheus metrics, and drive
// Sweep for stores without their own timer using StartSweeper.
package ratelimit
