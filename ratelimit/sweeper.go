package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StartSweeper calls store.Sweep every interval until ctx is cancelled.
// The returned channel is closed once the loop has exited.
//
// MemoryStore runs its own sweeper; use this for SQLStore. A non-positive
// interval disables sweeping, like WithSweepInterval(0): no goroutine is
// started and the returned channel is already closed.
//
// Example:
//
//	done := ratelimit.StartSweeper(ctx, store, time.Hour, logger)
//	// ... application runs ...
//	cancel()
//	<-done
func StartSweeper(ctx context.Context, store Store, interval time.Duration, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		logger.Warn().Dur("interval", interval).Msg("rate limit sweeper disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)

		logger.Info().
			Dur("interval", interval).
			Msg("starting rate limit sweeper")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info().Msg("stopping rate limit sweeper")
				return
			case <-ticker.C:
				if err := store.Sweep(ctx); err != nil {
					logger.Error().
						Err(err).
						Msg("rate limit sweep failed")
				}
			}
		}
	}()

	return done
}
