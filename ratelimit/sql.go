package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTableName is the table used by SQLStore.
	DefaultTableName = "rate_limit_entry"

	// DefaultRetention is how long SQLStore keeps rows before Sweep deletes them.
	DefaultRetention = 24 * time.Hour
)

// Schema returns PostgreSQL DDL for the SQLStore table.
//
// The (ip, window_start) index is unique: a racing duplicate insert fails
// and is retried as an update instead of creating a second counter.
func Schema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
    id BIGSERIAL PRIMARY KEY,
    ip VARCHAR(64) NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    request_count INTEGER NOT NULL,
    permit_limit INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    last_request_at TIMESTAMPTZ NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_%[1]s_ip_window_start ON %[1]s (ip, window_start);`, table)
}

type sqlEntry struct {
	ID            int64        `db:"id"`
	IP            string       `db:"ip"`
	WindowStart   time.Time    `db:"window_start"`
	RequestCount  int          `db:"request_count"`
	PermitLimit   int          `db:"permit_limit"`
	CreatedAt     time.Time    `db:"created_at"`
	LastRequestAt sql.NullTime `db:"last_request_at"`
}

// SQLStore is a Store backed by a relational table.
//
// Increments are optimistic: the row is read, then updated only if its
// count is unchanged. A lost race (no row updated, or a duplicate insert)
// is retried once; a second loss returns ErrConflict.
type SQLStore struct {
	db        *sqlx.DB
	table     string
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
	tracer    trace.Tracer

	selectQuery string
	insertQuery string
	updateQuery string
	deleteQuery string
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithTableName overrides DefaultTableName.
func WithTableName(name string) SQLOption {
	return func(s *SQLStore) {
		s.table = name
	}
}

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) SQLOption {
	return func(s *SQLStore) {
		s.retention = d
	}
}

// WithSQLNow overrides the clock.
func WithSQLNow(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		s.now = now
	}
}

// WithSQLLogger sets the logger.
func WithSQLLogger(l zerolog.Logger) SQLOption {
	return func(s *SQLStore) {
		s.logger = l
	}
}

// WithTracerProvider sets the provider used for store spans.
// If unset, otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) SQLOption {
	return func(s *SQLStore) {
		s.tracer = tp.Tracer("github.com/kroma-labs/sentinel-guard/ratelimit")
	}
}

// NewSQLStore creates a SQLStore on db. Placeholders are rebound for the
// driver db was opened with, so any sqlx-supported driver works.
//
// Example:
//
//	db := sqlx.MustConnect("postgres", dsn)
//	store := ratelimit.NewSQLStore(db)
//	if err := store.Migrate(ctx); err != nil {
//	    return err
//	}
func NewSQLStore(db *sqlx.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:        db,
		table:     DefaultTableName,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer("github.com/kroma-labs/sentinel-guard/ratelimit")
	}

	s.selectQuery = db.Rebind(fmt.Sprintf(
		`SELECT id, ip, window_start, request_count, permit_limit, created_at, last_request_at
FROM %s WHERE ip = ? AND window_start = ?`, s.table))
	s.insertQuery = db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (ip, window_start, request_count, permit_limit, created_at, last_request_at)
VALUES (?, ?, ?, ?, ?, ?)`, s.table))
	s.updateQuery = db.Rebind(fmt.Sprintf(
		`UPDATE %s SET request_count = request_count + 1, last_request_at = ?
WHERE id = ? AND request_count = ?`, s.table))
	s.deleteQuery = db.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE window_start < ?`, s.table))

	return s
}

// Migrate creates the table and index if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema(s.table)); err != nil {
		return fmt.Errorf("ratelimit: migrate %s: %w", s.table, err)
	}
	return nil
}

// Probe implements Store. Only the row for the current window is read, so
// an elapsed row that has not been swept yet is never reported.
func (s *SQLStore) Probe(ctx context.Context, key string, window time.Duration) (QuotaInfo, error) {
	ctx, span := s.start(ctx, "ratelimit.sql.Probe", key)
	defer span.End()

	now := s.now()
	start := WindowStart(now, window)

	var e sqlEntry
	err := s.db.GetContext(ctx, &e, s.selectQuery, key, start)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return emptyInfo(now, window), nil
	case err != nil:
		endSpan(span, err)
		return QuotaInfo{}, fmt.Errorf("ratelimit: probe %q: %w", key, err)
	}

	return QuotaInfo{
		RequestCount:  e.RequestCount,
		WindowStart:   start,
		LimitExceeded: e.RequestCount >= e.PermitLimit,
	}, nil
}

// Increment implements Store.
func (s *SQLStore) Increment(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	ctx, span := s.start(ctx, "ratelimit.sql.Increment", key)
	defer span.End()

	if limit <= 0 {
		return false, nil
	}

	admitted, err := s.tryIncrement(ctx, key, window, limit)
	if errors.Is(err, ErrConflict) {
		span.AddEvent("retry after conflict")
		s.logger.Debug().
			Err(err).
			Str("ip", key).
			Msg("rate limit entry conflict, retrying")
		admitted, err = s.tryIncrement(ctx, key, window, limit)
	}
	if err != nil {
		endSpan(span, err)
		return false, fmt.Errorf("ratelimit: increment %q: %w", key, err)
	}

	span.SetAttributes(attribute.Bool("ratelimit.admitted", admitted))
	return admitted, nil
}

func (s *SQLStore) tryIncrement(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	now := s.now().UTC()
	start := WindowStart(now, window)

	var e sqlEntry
	err := s.db.GetContext(ctx, &e, s.selectQuery, key, start)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, s.insertQuery, key, start, 1, limit, now, now); err != nil {
			if isUniqueViolation(err) {
				return false, fmt.Errorf("%w: insert: %w", ErrConflict, err)
			}
			return false, fmt.Errorf("insert: %w", err)
		}
		return true, nil
	case err != nil:
		return false, err
	}

	if e.RequestCount >= limit {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, s.updateQuery, now, e.ID, e.RequestCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("%w: row %d changed", ErrConflict, e.ID)
	}
	return true, nil
}

// uniqueViolationMessages cover drivers that expose neither a SQLSTATE nor a
// typed error (SQL Server, MySQL, SQLite) and wrapped Postgres errors.
var uniqueViolationMessages = []string{
	"cannot insert duplicate key",
	"violation of unique key constraint",
	"duplicate entry",
	"unique constraint failed",
	"duplicate key value violates unique constraint",
}

// isUniqueViolation reports whether err is a duplicate insert on the
// (ip, window_start) index rather than a connection or query failure.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var stateErr interface{ SQLState() string }
	if errors.As(err, &stateErr) {
		return stateErr.SQLState() == "23505"
	}
	msg := strings.ToLower(err.Error())
	for _, m := range uniqueViolationMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Sweep implements Store by deleting rows older than the retention period.
func (s *SQLStore) Sweep(ctx context.Context) error {
	ctx, span := s.start(ctx, "ratelimit.sql.Sweep", "")
	defer span.End()

	cutoff := s.now().UTC().Add(-s.retention)
	res, err := s.db.ExecContext(ctx, s.deleteQuery, cutoff)
	if err != nil {
		endSpan(span, err)
		return fmt.Errorf("ratelimit: sweep: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info().
			Int64("deleted", n).
			Time("cutoff", cutoff).
			Msg("expired rate limit entries deleted")
	}
	return nil
}

// Ping checks database connectivity. It satisfies the health check signature.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) start(ctx context.Context, name, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.sql.table", s.table),
		attribute.String("db.system", s.db.DriverName()),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("ratelimit.key", key))
	}
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
