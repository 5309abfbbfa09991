package factory

import (
	"errors"
	"fmt"
	"log/slog"

	"dreamproxy/internal/config"
	"dreamproxy/internal/metrics"
	"dreamproxy/internal/middleware/ratelimit"
	"dreamproxy/internal/storage"
	"dreamproxy/internal/storage/memory"
	"dreamproxy/internal/storage/redis"
	"dreamproxy/internal/telemetry"
)

// QuotaStores are the stores backing the limiter
type QuotaStores struct {
	// Primary counts every request
	Primary storage.QuotaStore
	// Fallback takes over when Primary fails; nil for the memory store
	Fallback storage.QuotaStore
	// Type is the storage actually in use
	Type string
}

// Close closes every store
func (s *QuotaStores) Close() error {
	var errs []error
	if s.Primary != nil {
		errs = append(errs, s.Primary.Close())
	}
	if s.Fallback != nil {
		errs = append(errs, s.Fallback.Close())
	}
	return errors.Join(errs...)
}

// CreateQuotaStores creates the quota store selected by cfg.Storage. An
// unreachable Redis at startup degrades to the memory store.
func CreateQuotaStores(cfg *config.RateLimit, tel *telemetry.Telemetry, m *metrics.Metrics, logger *slog.Logger) (*QuotaStores, error) {
	storeCfg := &storage.QuotaStoreConfig{
		GracePeriod: cfg.GracePeriod,
		MaxEntries:  cfg.MaxEntries,
	}
	if m != nil {
		storeCfg.OnEvict = m.RecordEviction
	}

	switch cfg.Storage {
	case "memory", "":
		logger.Info("Creating memory quota store", "maxEntries", cfg.MaxEntries)
		return &QuotaStores{Primary: memory.NewStore(storeCfg), Type: "memory"}, nil

	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis configuration required for redis storage")
		}

		client, err := CreateRedisClient(cfg.Redis, tel, logger)
		if err != nil {
			logger.Warn("Failed to create Redis client, falling back to memory store", "error", err)
			return &QuotaStores{Primary: memory.NewStore(storeCfg), Type: "memory"}, nil
		}

		logger.Info("Creating Redis quota store",
			"host", cfg.Redis.Host,
			"port", cfg.Redis.Port,
		)
		return &QuotaStores{
			Primary:  redis.NewStore(redis.NewClientAdapter(client), storeCfg, cfg.Redis.KeyPrefix),
			Fallback: memory.NewStore(storeCfg),
			Type:     "redis",
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage)
	}
}

// CreateLimiter creates the fixed-window limiter. Decisions are counted in m
// when metrics are enabled.
func CreateLimiter(cfg *config.RateLimit, stores *QuotaStores, m *metrics.Metrics, logger *slog.Logger) (*ratelimit.Limiter, error) {
	keyFunc := ratelimit.ByPeer
	if cfg.TrustForwardedFor {
		keyFunc = ratelimit.ClientKey
	}

	rlCfg := &ratelimit.Config{
		Window:      cfg.Window,
		MaxRequests: cfg.MaxRequests,
		Store:       stores.Primary,
		Fallback:    stores.Fallback,
		KeyFunc:     keyFunc,
		Logger:      logger,
	}
	if m != nil {
		rlCfg.OnDecision = func(d ratelimit.Decision) {
			m.RecordDecision(d.Allowed, d.Degraded)
		}
		if sizer, ok := stores.Primary.(storage.Sizer); ok {
			if err := m.TrackQuotaRecords(sizer.Len); err != nil {
				return nil, fmt.Errorf("registering quota gauge: %w", err)
			}
		}
	}

	limiter, err := ratelimit.NewLimiter(rlCfg)
	if err != nil {
		return nil, err
	}

	logger.Info("Rate limiting configured",
		"window", cfg.Window,
		"maxRequests", cfg.MaxRequests,
		"storage", stores.Type,
		"trustForwardedFor", cfg.TrustForwardedFor,
	)
	return limiter, nil
}
