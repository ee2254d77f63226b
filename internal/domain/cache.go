package domain

import (
	"context"
	"time"
)

// Cache stores finished reports keyed by a content fingerprint so identical
// batches are not re-analyzed. Local LRU (Community) or Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a raw value. Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a raw value with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetReport retrieves a cached report by fingerprint. Returns nil, nil on miss.
	GetReport(ctx context.Context, tenantID string, fingerprint string) (*Report, error)

	// SetReport caches a report under its batch fingerprint.
	SetReport(ctx context.Context, tenantID string, fingerprint string, report *Report, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis" or "none"
	Type string

	// ReportTTL is how long an analyzed batch stays cached.
	ReportTTL time.Duration

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
