package ratelimit

import (
	"log/slog"
	"time"

	"dreamproxy/internal/storage"
)

// Config defines rate limiting configuration
type Config struct {
	// Window is the fixed interval requests are counted over
	Window time.Duration
	// MaxRequests is the number of requests allowed per window
	MaxRequests int
	// Store holds the per-client counters
	Store storage.QuotaStore
	// Fallback is consulted when Store fails (nil = fail the request)
	Fallback storage.QuotaStore
	// KeyFunc extracts the client key (default: ClientKey)
	KeyFunc KeyFunc
	// Logger for rate limit events
	Logger *slog.Logger
	// Now returns the current time (default: time.Now)
	Now func() time.Time
	// OnDecision observes every decision, e.g. for metrics
	OnDecision func(Decision)
}

// DefaultConfig returns the default policy: 20 requests per hour
func DefaultConfig() *Config {
	return &Config{
		Window:      time.Hour,
		MaxRequests: 20,
		KeyFunc:     ClientKey,
	}
}
