package memory

import (
	"context"
	"sync"
	"time"

	"dreamproxy/internal/storage"
	"github.com/jellydator/ttlcache/v3"
)

// Store implements QuotaStore in process memory. Records expire a grace
// period after their window ends and the least recently used record is
// evicted once MaxEntries is reached.
type Store struct {
	cache     *ttlcache.Cache[string, storage.Record]
	config    *storage.QuotaStoreConfig
	mu        sync.Mutex
	closeOnce sync.Once
	// unsubscribe detaches the eviction callback, nil without OnEvict
	unsubscribe func()
}

// NewStore creates a new memory store and starts its expiry loop
func NewStore(config *storage.QuotaStoreConfig) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}

	opts := []ttlcache.Option[string, storage.Record]{
		// Reading a record must not extend its lifetime
		ttlcache.WithDisableTouchOnHit[string, storage.Record](),
	}
	if config.MaxEntries > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, storage.Record](uint64(config.MaxEntries)))
	}

	s := &Store{
		cache:  ttlcache.New[string, storage.Record](opts...),
		config: config,
	}

	if config.OnEvict != nil {
		s.unsubscribe = s.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, storage.Record]) {
			if r, ok := evictionReason(reason); ok {
				config.OnEvict(r)
			}
		})
	}

	go s.cache.Start()

	return s
}

// Hit counts one request for key
func (s *Store) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := storage.Record{Key: key, WindowResetAt: now.Add(window)}
	if item := s.cache.Get(key); item != nil {
		rec = item.Value()
	}

	if now.After(rec.WindowResetAt) {
		rec.Count = 0
		rec.WindowResetAt = now.Add(window)
	}
	rec.Count++

	s.cache.Set(key, rec, s.config.TTL(rec, now))
	return rec, nil
}

// Get returns the record for key
func (s *Store) Get(ctx context.Context, key string) (storage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(key)
	if item == nil {
		return storage.Record{}, false, nil
	}
	return item.Value(), true, nil
}

// Reset removes the record for key
func (s *Store) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(key)
	return nil
}

// Len returns the number of records held, expired ones included until swept
func (s *Store) Len() int {
	return s.cache.Len()
}

// Close stops the expiry loop and drops all records. Records dropped here
// are not reported as evictions.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.cache.Stop()
		s.cache.DeleteAll()
	})
	return nil
}

// evictionReason maps the cache's reason to the metric label. Explicit
// deletes (admin resets) are not evictions.
func evictionReason(r ttlcache.EvictionReason) (string, bool) {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "expired", true
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity", true
	default:
		return "", false
	}
}
