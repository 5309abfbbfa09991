package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dreamproxy/internal/storage"
)

// Client defines the interface for Redis operations
type Client interface {
	// Eval executes a Lua script
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	// HGetAll returns all fields of a hash
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Del deletes keys
	Del(ctx context.Context, keys ...string) error
	// Ping checks the connection
	Ping(ctx context.Context) error
	// Close closes the connection
	Close() error
}

// hitScript keeps count and reset (unix ms) in a hash so every instance
// sharing the server sees the same window
const hitScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local grace = tonumber(ARGV[3])

local vals = redis.call('HMGET', key, 'count', 'reset')
local count = tonumber(vals[1]) or 0
local reset = tonumber(vals[2])

if reset == nil or now > reset then
	count = 0
	reset = now + window
end

count = count + 1
redis.call('HSET', key, 'count', count, 'reset', reset)
redis.call('PEXPIREAT', key, reset + grace)
return {count, reset}
`

// DefaultKeyPrefix namespaces quota hashes
const DefaultKeyPrefix = "dreamproxy:quota:"

// Store implements QuotaStore using Redis
type Store struct {
	client Client
	config *storage.QuotaStoreConfig
	prefix string
	script string
}

// NewStore creates a new Redis store
func NewStore(client Client, config *storage.QuotaStoreConfig, prefix string) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &Store{
		client: client,
		config: config,
		prefix: prefix,
		script: hitScript,
	}
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// Hit counts one request for key
func (s *Store) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (storage.Record, error) {
	result, err := s.client.Eval(ctx, s.script, []string{s.redisKey(key)},
		now.UnixMilli(),
		window.Milliseconds(),
		s.config.GracePeriod.Milliseconds(),
	)
	if err != nil {
		return storage.Record{}, fmt.Errorf("failed to execute quota script: %w", err)
	}

	res, ok := result.([]interface{})
	if !ok || len(res) != 2 {
		return storage.Record{}, errors.New("invalid quota script result")
	}

	count, ok1 := res[0].(int64)
	reset, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return storage.Record{}, errors.New("invalid quota script result types")
	}

	return storage.Record{
		Key:           key,
		Count:         int(count),
		WindowResetAt: time.UnixMilli(reset),
	}, nil
}

// Get returns the record for key
func (s *Store) Get(ctx context.Context, key string) (storage.Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key))
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("failed to read quota: %w", err)
	}
	if len(fields) == 0 {
		return storage.Record{}, false, nil
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("invalid quota count %q: %w", fields["count"], err)
	}
	reset, err := strconv.ParseInt(fields["reset"], 10, 64)
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("invalid quota reset %q: %w", fields["reset"], err)
	}

	return storage.Record{
		Key:           key,
		Count:         count,
		WindowResetAt: time.UnixMilli(reset),
	}, true, nil
}

// Reset resets the counter for a key
func (s *Store) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key))
}

// Ping checks that Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
