package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"dreamproxy/internal/storage"
)

// Policy is the fixed-window quota applied to every client
type Policy struct {
	Window      time.Duration `json:"window"`
	MaxRequests int           `json:"maxRequests"`
}

// Decision is the outcome of one Check
type Decision struct {
	Key       string
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the time left in the window, zero when allowed
	RetryAfter time.Duration
	// RetryAfterMinutes rounds RetryAfter up to whole minutes, at least 1 when denied
	RetryAfterMinutes int
	// Degraded is set when the decision came from the fallback store
	Degraded bool
}

// Limiter applies a fixed-window counter per client key
type Limiter struct {
	policy     Policy
	store      storage.QuotaStore
	fallback   storage.QuotaStore
	keyFunc    KeyFunc
	logger     *slog.Logger
	now        func() time.Time
	onDecision func(Decision)
	// onFallback is set while the last decision came from the fallback store
	onFallback atomic.Bool
}

// NewLimiter creates a limiter from cfg
func NewLimiter(cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("rate limiter requires a store")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %v", cfg.Window)
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("rate limit maxRequests must be positive, got %d", cfg.MaxRequests)
	}

	l := &Limiter{
		policy:     Policy{Window: cfg.Window, MaxRequests: cfg.MaxRequests},
		store:      cfg.Store,
		fallback:   cfg.Fallback,
		keyFunc:    cfg.KeyFunc,
		logger:     cfg.Logger,
		now:        cfg.Now,
		onDecision: cfg.OnDecision,
	}
	if l.keyFunc == nil {
		l.keyFunc = ClientKey
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "ratelimit")
	if l.now == nil {
		l.now = time.Now
	}

	return l, nil
}

// Policy returns the configured quota
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Store returns the primary quota store
func (l *Limiter) Store() storage.QuotaStore {
	return l.store
}

// UsingFallback reports whether the most recent decision was served by the
// fallback store
func (l *Limiter) UsingFallback() bool {
	return l.onFallback.Load()
}

// Check counts a request for key at the current time
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	return l.CheckAt(ctx, key, l.now())
}

// CheckAt counts a request for key at now and decides whether it is allowed
func (l *Limiter) CheckAt(ctx context.Context, key string, now time.Time) (Decision, error) {
	rec, err := l.store.Hit(ctx, key, now, l.policy.Window)
	degraded := false
	if err != nil {
		if l.fallback == nil {
			return Decision{}, fmt.Errorf("quota store: %w", err)
		}
		l.logger.Warn("Quota store error, falling back to in-memory",
			"error", err,
			"key", key,
		)
		rec, err = l.fallback.Hit(ctx, key, now, l.policy.Window)
		if err != nil {
			return Decision{}, fmt.Errorf("fallback quota store: %w", err)
		}
		degraded = true
	}

	if l.fallback != nil {
		if was := l.onFallback.Swap(degraded); was && !degraded {
			l.logger.Info("Quota store recovered")
		}
	}

	d := decide(l.policy, rec, now)
	d.Key = key
	d.Degraded = degraded

	if l.onDecision != nil {
		l.onDecision(d)
	}
	return d, nil
}

// decide turns an already incremented record into a decision
func decide(p Policy, rec storage.Record, now time.Time) Decision {
	d := Decision{
		Allowed: rec.Count <= p.MaxRequests,
		Count:   rec.Count,
		Limit:   p.MaxRequests,
		ResetAt: rec.WindowResetAt,
	}
	if d.Allowed {
		d.Remaining = p.MaxRequests - rec.Count
		return d
	}

	d.RetryAfter = rec.WindowResetAt.Sub(now)
	if d.RetryAfter < 0 {
		d.RetryAfter = 0
	}
	d.RetryAfterMinutes = ceilDiv(d.RetryAfter, time.Minute)
	if d.RetryAfterMinutes < 1 {
		d.RetryAfterMinutes = 1
	}
	return d
}

// RetryAfterSeconds is the Retry-After header value, at least 1
func (d Decision) RetryAfterSeconds() int {
	s := ceilDiv(d.RetryAfter, time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func ceilDiv(d, unit time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + unit - 1) / unit)
}

// Message is the client facing text for a denied decision
func (d Decision) Message() string {
	unit := "minutes"
	if d.RetryAfterMinutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many requests. Try again in %d %s.", d.RetryAfterMinutes, unit)
}
