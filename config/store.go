package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/kroma-labs/sentinel-guard/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnknownStorageType is returned for a StorageType other than the ones below.
var ErrUnknownStorageType = errors.New("config: unknown storage type")

// StorageType selects the rate limit store.
type StorageType string

const (
	StorageInMemory  StorageType = "InMemory"
	StorageSQLServer StorageType = "SqlServer"
	StorageRedis     StorageType = "Redis"
)

// ParseStorageType parses a storage type, ignoring case. "Sql" is accepted
// for SqlServer and an empty string yields InMemory.
func ParseStorageType(s string) (StorageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inmemory", "memory":
		return StorageInMemory, nil
	case "sqlserver", "sql":
		return StorageSQLServer, nil
	case "redis":
		return StorageRedis, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStorageType, s)
	}
}

// OpenStore builds the store selected by cfg.StorageType. The returned
// close function releases the store's resources and fits
// httpserver.WithService.
//
// The SQL driver named by cfg.SQL.Driver must be registered by the caller,
// for example with a blank import of github.com/lib/pq.
func OpenStore(ctx context.Context, cfg RateLimit, logger zerolog.Logger) (ratelimit.Store, func(context.Context) error, error) {
	kind, err := ParseStorageType(string(cfg.StorageType))
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case StorageSQLServer:
		return openSQLStore(ctx, cfg.SQL, logger)
	case StorageRedis:
		return openRedisStore(cfg.Redis)
	default:
		store := ratelimit.NewMemoryStore(ratelimit.WithMemoryLogger(logger))
		return store, func(context.Context) error { return store.Close() }, nil
	}
}

func openSQLStore(ctx context.Context, cfg SQL, logger zerolog.Logger) (ratelimit.Store, func(context.Context) error, error) {
	if cfg.ConnectionString == "" {
		return nil, nil, errors.New("config: RateLimit.Sql.ConnectionString is required for SqlServer storage")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("config: open %s database: %w", cfg.Driver, err)
	}

	opts := []ratelimit.SQLOption{ratelimit.WithSQLLogger(logger)}
	if cfg.TableName != "" {
		opts = append(opts, ratelimit.WithTableName(cfg.TableName))
	}
	store := ratelimit.NewSQLStore(db, opts...)

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return store, func(context.Context) error { return db.Close() }, nil
}

func openRedisStore(cfg Redis) (ratelimit.Store, func(context.Context) error, error) {
	if len(cfg.Addrs) == 0 {
		return nil, nil, errors.New("config: RateLimit.Redis.Addrs is required for Redis storage")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var opts []ratelimit.RedisOption
	if cfg.KeyPrefix != "" {
		opts = append(opts, ratelimit.WithKeyPrefix(cfg.KeyPrefix))
	}
	return ratelimit.NewRedisStore(client, opts...), func(context.Context) error { return client.Close() }, nil
}
