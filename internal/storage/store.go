package storage

import (
	"context"
	"time"
)

// Record is the quota state of a single client key
type Record struct {
	Key           string    `json:"key"`
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"windowResetAt"`
}

// QuotaStore holds fixed-window counters keyed by client.
//
// Hit is one atomic read-modify-write: load the record (or start a window at
// now+window), roll the window over when now is strictly after WindowResetAt,
// then increment Count. Denied requests are counted too.
type QuotaStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (Record, error)

	// Get returns the stored record without counting a request
	Get(ctx context.Context, key string) (Record, bool, error)

	// Reset forgets the record for the given key
	Reset(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// Sizer is implemented by stores that can report how many records they hold
type Sizer interface {
	Len() int
}

// Pinger is implemented by stores backed by a remote service
type Pinger interface {
	Ping(ctx context.Context) error
}

// QuotaStoreConfig defines common configuration for quota stores
type QuotaStoreConfig struct {
	// GracePeriod keeps a record alive past WindowResetAt before eviction
	GracePeriod time.Duration
	// MaxEntries is the maximum number of records to keep (0 = unlimited)
	MaxEntries int
	// OnEvict is called with the reason whenever a record is dropped
	OnEvict func(reason string)
}

// DefaultConfig returns default configuration
func DefaultConfig() *QuotaStoreConfig {
	return &QuotaStoreConfig{
		GracePeriod: 5 * time.Minute,
		MaxEntries:  10000,
	}
}

// TTL is how long a record should live once written at now
func (c *QuotaStoreConfig) TTL(rec Record, now time.Time) time.Duration {
	ttl := rec.WindowResetAt.Sub(now) + c.GracePeriod
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}
