package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
	"golang.org/x/time/rate"
)

// HTTPSinkConfig configures an HTTPSink.
type HTTPSinkConfig struct {
	// Endpoint is the collector URL batches are POSTed to. Required.
	Endpoint string

	// Client sends the batches. Default: a client with a 10s timeout.
	Client *http.Client

	// Headers are added to every batch request (e.g. an API key).
	Headers map[string]string

	// QueueSize bounds the number of pending items. Items beyond it are dropped.
	// Default: 1024
	QueueSize int

	// BatchSize is the maximum number of items per POST.
	// Default: 50
	BatchSize int

	// FlushInterval is the longest an item waits before being sent.
	// Default: 2s
	FlushInterval time.Duration

	// MaxRetries is the number of retries per batch after the first attempt.
	// Zero disables retries. DefaultHTTPSinkConfig sets 3.
	MaxRetries uint

	// InitialBackoff and MaxBackoff bound the exponential retry delay.
	// Default: 200ms and 5s
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BreakerTimeout is how long the breaker stays open before probing.
	// Default: 30s
	BreakerTimeout time.Duration

	// BreakerFailures is the number of consecutive failed batches that opens the breaker.
	// Default: 5
	BreakerFailures uint32

	// BreakerStore shares breaker state between instances. If nil, the
	// breaker is local. See NewRedisBreakerStore.
	BreakerStore gobreaker.SharedDataStore

	// Logger receives delivery failures, throttled.
	Logger zerolog.Logger
}

// DefaultHTTPSinkConfig returns a configuration for endpoint with defaults filled in.
func DefaultHTTPSinkConfig(endpoint string) HTTPSinkConfig {
	return HTTPSinkConfig{
		Endpoint:        endpoint,
		Client:          &http.Client{Timeout: 10 * time.Second},
		QueueSize:       1024,
		BatchSize:       50,
		FlushInterval:   2 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  200 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		BreakerTimeout:  30 * time.Second,
		BreakerFailures: 5,
		Logger:          zerolog.Nop(),
	}
}

// NewRedisBreakerStore returns breaker state storage shared through Redis.
func NewRedisBreakerStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// envelope is one item of a posted batch.
type envelope struct {
	Kind      string            `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Event     *Event            `json:"event,omitempty"`
	Exception *ExceptionInfo    `json:"exception,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

type breaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// errRetryableStatus marks a collector response worth retrying.
var errRetryableStatus = errors.New("telemetry: collector returned retryable status")

// HTTPSink is a Sink that batches items and POSTs them as JSON arrays.
//
// Track never blocks: items go to a bounded queue and are dropped when it
// is full. A background goroutine sends batches with exponential retry
// behind a circuit breaker. Close flushes what is queued.
type HTTPSink struct {
	cfg     HTTPSinkConfig
	queue   chan envelope
	breaker breaker

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	dropped atomic.Int64
	sent    atomic.Int64
	failLog rate.Sometimes
}

// NewHTTPSink creates an HTTPSink and starts its sender.
//
// Example:
//
//	sink, err := telemetry.NewHTTPSink(telemetry.DefaultHTTPSinkConfig("https://collector/api/events"))
//	if err != nil {
//	    return err
//	}
//	defer sink.Close(ctx)
func NewHTTPSink(cfg HTTPSinkConfig) (*HTTPSink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("telemetry: http sink endpoint is required")
	}
	def := DefaultHTTPSinkConfig(cfg.Endpoint)
	if cfg.Client == nil {
		cfg.Client = def.Client
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}

	s := &HTTPSink{
		cfg:     cfg,
		queue:   make(chan envelope, cfg.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		failLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
	s.breaker = s.newBreaker()

	go s.run()
	return s, nil
}

func (s *HTTPSink) newBreaker() breaker {
	st := gobreaker.Settings{
		Name:    "telemetry-sink",
		Timeout: s.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.cfg.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("telemetry sink breaker state changed")
		},
	}

	if s.cfg.BreakerStore != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[interface{}](s.cfg.BreakerStore, st)
		if err == nil {
			return dcb
		}
		s.cfg.Logger.Error().Err(err).Msg("distributed breaker unavailable, using local breaker")
	}
	return gobreaker.NewCircuitBreaker[interface{}](st)
}

// Track implements Sink.
func (s *HTTPSink) Track(_ context.Context, e *Event) error {
	return s.enqueue(envelope{Kind: "request", Timestamp: e.ResponseTimestamp, Event: e})
}

// TrackException implements Sink.
func (s *HTTPSink) TrackException(_ context.Context, ex *ExceptionInfo, tags map[string]string) error {
	return s.enqueue(envelope{Kind: "exception", Timestamp: time.Now().UTC(), Exception: ex, Tags: tags})
}

func (s *HTTPSink) enqueue(env envelope) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	select {
	case s.queue <- env:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns the number of items dropped because the queue was full.
func (s *HTTPSink) Dropped() int64 {
	return s.dropped.Load()
}

// Sent returns the number of items delivered.
func (s *HTTPSink) Sent() int64 {
	return s.sent.Load()
}

// Close stops accepting items and flushes the queue. It returns ctx.Err()
// if ctx ends before the flush completes.
func (s *HTTPSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *HTTPSink) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]envelope, 0, s.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.send(batch)
		batch = make([]envelope, 0, s.cfg.BatchSize)
	}

	for {
		select {
		case env := <-s.queue:
			batch = append(batch, env)
			if len(batch) >= s.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stop:
			for {
				select {
				case env := <-s.queue:
					batch = append(batch, env)
					if len(batch) >= s.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *HTTPSink) send(batch []envelope) {
	body, err := json.Marshal(batch)
	if err != nil {
		s.logFailure(err, len(batch))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MaxBackoff*time.Duration(s.cfg.MaxRetries+2))
	defer cancel()

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, body)
	})
	if err != nil {
		s.logFailure(err, len(batch))
		return
	}
	s.sent.Add(int64(len(batch)))
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.InitialBackoff,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         s.cfg.MaxBackoff,
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := s.cfg.Client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("%w: %d", errRetryableStatus, resp.StatusCode)
		case resp.StatusCode >= 400:
			return struct{}{}, backoff.Permanent(fmt.Errorf("telemetry: collector rejected batch: %d", resp.StatusCode))
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.cfg.MaxRetries+1),
	)
	return err
}

func (s *HTTPSink) logFailure(err error, items int) {
	s.failLog.Do(func() {
		s.cfg.Logger.Error().
			Err(err).
			Int("items", items).
			Str("endpoint", s.cfg.Endpoint).
			Msg("telemetry batch delivery failed")
	})
}
