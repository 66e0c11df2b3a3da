package domain

import (
	"context"
	"time"
)

// Cache is the read-side cache. Community tier uses a local LRU; Pro tier
// uses Redis, optionally fronted by the LRU (two-phase). The scoring path
// does not depend on it; it serves dashboard/assessment reads and alert
// notification throttling.
type Cache interface {
	// Get retrieves a value. Returns nil, nil if the key is not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a windowed counter and
	// returns the new value. Used to throttle alert notifications.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
