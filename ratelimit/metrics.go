package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records rate limit decisions as Prometheus metrics.
type Collector struct {
	decisions *prometheus.CounterVec
	errors    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

type collectorConfig struct {
	namespace  string
	registerer prometheus.Registerer
	buckets    []float64
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) CollectorOption {
	return func(c *collectorConfig) {
		c.namespace = ns
	}
}

// WithRegisterer sets the registry. Default: prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) CollectorOption {
	return func(c *collectorConfig) {
		c.registerer = r
	}
}

// WithBuckets sets the store latency histogram buckets in seconds.
func WithBuckets(b []float64) CollectorOption {
	return func(c *collectorConfig) {
		c.buckets = b
	}
}

// NewCollector creates and registers the rate limit metrics:
//
//   - ratelimit_decisions_total{store,outcome}: admitted and rejected requests
//   - ratelimit_store_errors_total{store,operation}: failed store calls
//   - ratelimit_store_duration_seconds{store,operation}: store call latency
//
// Registering twice on the same registry reuses the existing collectors.
func NewCollector(opts ...CollectorOption) *Collector {
	cfg := collectorConfig{
		registerer: prometheus.DefaultRegisterer,
		buckets:    []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Collector{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions by outcome.",
			},
			[]string{"store", "outcome"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Subsystem: "ratelimit",
				Name:      "store_errors_total",
				Help:      "Total number of failed rate limit store operations.",
			},
			[]string{"store", "operation"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.namespace,
				Subsystem: "ratelimit",
				Name:      "store_duration_seconds",
				Help:      "Duration of rate limit store operations in seconds.",
				Buckets:   cfg.buckets,
			},
			[]string{"store", "operation"},
		),
	}

	if err := cfg.registerer.Register(c.decisions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c.decisions = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	if err := cfg.registerer.Register(c.errors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c.errors = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	if err := cfg.registerer.Register(c.duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c.duration = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}

	return c
}

// Instrument wraps store so that every call is recorded on c under the
// given store label.
//
// Example:
//
//	collector := ratelimit.NewCollector(ratelimit.WithNamespace("api"))
//	store := ratelimit.Instrument(ratelimit.NewMemoryStore(), "memory", collector)
func Instrument(store Store, name string, c *Collector) Store {
	if c == nil {
		return store
	}
	return &instrumentedStore{Store: store, name: name, c: c}
}

type instrumentedStore struct {
	Store
	name string
	c    *Collector
}

func (s *instrumentedStore) Probe(ctx context.Context, key string, window time.Duration) (QuotaInfo, error) {
	start := time.Now()
	info, err := s.Store.Probe(ctx, key, window)
	s.observe("probe", start, err)
	return info, err
}

func (s *instrumentedStore) Increment(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	start := time.Now()
	admitted, err := s.Store.Increment(ctx, key, window, limit)
	s.observe("increment", start, err)

	if err == nil {
		outcome := "admitted"
		if !admitted {
			outcome = "rejected"
		}
		s.c.decisions.WithLabelValues(s.name, outcome).Inc()
	}
	return admitted, err
}

func (s *instrumentedStore) Sweep(ctx context.Context) error {
	start := time.Now()
	err := s.Store.Sweep(ctx)
	s.observe("sweep", start, err)
	return err
}

// Unwrap returns the wrapped store.
func (s *instrumentedStore) Unwrap() Store {
	return s.Store
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.c.duration.WithLabelValues(s.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.c.errors.WithLabelValues(s.name, op).Inc()
	}
}
