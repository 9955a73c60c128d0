package detection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTimingTracker shares last-seen timestamps between instances.
type RedisTimingTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures the Redis-backed tracker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisConfigFromEnv reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB,
// REDIS_TIMING_PREFIX and REDIS_TIMING_TTL.
func RedisConfigFromEnv() RedisConfig {
	cfg := RedisConfig{
		Addr:     getEnvOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		Prefix:   getEnvOr("REDIS_TIMING_PREFIX", "goprint:timing:"),
		TTL:      time.Hour,
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DB = n
		}
	}
	if v := os.Getenv("REDIS_TIMING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TTL = d
		}
	}
	return cfg
}

// NewRedisTimingTracker connects and pings the server.
func NewRedisTimingTracker(ctx context.Context, cfg RedisConfig) (*RedisTimingTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisTimingTrackerWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisTimingTrackerWithClient wraps an existing client.
func NewRedisTimingTrackerWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisTimingTracker {
	return &RedisTimingTracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *RedisTimingTracker) RecordRequest(ctx context.Context, key string, timestamp time.Time) error {
	return t.client.Set(ctx, t.prefix+key, timestamp.UnixMicro(), t.ttl).Err()
}

func (t *RedisTimingTracker) GetLastRequest(ctx context.Context, key string) (time.Time, bool, error) {
	v, err := t.client.Get(ctx, t.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMicro(v), true, nil
}

// Ping reports whether the Redis server is reachable.
func (t *RedisTimingTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisTimingTracker) Close() error {
	return t.client.Close()
}

func getEnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
