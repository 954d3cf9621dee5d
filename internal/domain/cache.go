package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching analytics responses.
// Supports two-phase caching: local LRU plus Redis in the Pro tier.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Cache key prefixes for per-account analytics responses. The worker deletes
// these keys when a new transaction lands for the account.
const (
	CacheKeyInsights = "insights:"
	CacheKeyFlagged  = "flagged:"
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Redis specific
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase wraps Redis with a local LRU front.
	EnableTwoPhase bool

	// Local LRU settings
	LocalMaxSize int
	LocalTTL     time.Duration
}
