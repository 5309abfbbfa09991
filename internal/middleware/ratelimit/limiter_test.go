package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"dreamproxy/internal/storage"
	"dreamproxy/internal/storage/memory"
)

type failingStore struct {
	err error
}

func (f *failingStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (storage.Record, error) {
	return storage.Record{}, f.err
}

func (f *failingStore) Get(ctx context.Context, key string) (storage.Record, bool, error) {
	return storage.Record{}, false, f.err
}

func (f *failingStore) Reset(ctx context.Context, key string) error { return f.err }
func (f *failingStore) Close() error                                { return nil }

// clock is a manually advanced time source
type clock struct {
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore(nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLimiter(t *testing.T, c *clock, max int) *Limiter {
	t.Helper()
	l, err := NewLimiter(&Config{
		Window:      time.Hour,
		MaxRequests: max,
		Store:       newStore(t),
		Logger:      quietLogger(),
		Now:         c.Now,
	})
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	return l
}

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil store", &Config{Window: time.Hour, MaxRequests: 20}, true},
		{"zero window", &Config{MaxRequests: 20, Store: &failingStore{}}, true},
		{"zero max", &Config{Window: time.Hour, Store: &failingStore{}}, true},
		{"valid", &Config{Window: time.Hour, MaxRequests: 20, Store: &failingStore{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLimiter(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l.keyFunc == nil || l.now == nil || l.logger == nil {
				t.Error("expected defaults to be filled in")
			}
			if l.Policy() != (Policy{Window: time.Hour, MaxRequests: 20}) {
				t.Errorf("unexpected policy %+v", l.Policy())
			}
		})
	}
}

func TestLimiter_AllowsUpToMax(t *testing.T) {
	c := newClock()
	l := newTestLimiter(t, c, 20)
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		d, err := l.Check(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if d.Count != i || d.Remaining != 20-i {
			t.Errorf("request %d: count=%d remaining=%d", i, d.Count, d.Remaining)
		}
		c.Advance(time.Second)
	}

	d, err := l.Check(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("request 21 should be denied")
	}
	if d.RetryAfterMinutes < 1 {
		t.Errorf("expected retryAfterMinutes >= 1, got %d", d.RetryAfterMinutes)
	}
	if d.Count != 21 {
		t.Errorf("denied requests are counted, expected 21 got %d", d.Count)
	}

	// Still denied, and still counting
	d, _ = l.Check(ctx, "203.0.113.7")
	if d.Allowed || d.Count != 22 {
		t.Errorf("expected denial with count 22, got allowed=%v count=%d", d.Allowed, d.Count)
	}
}

func TestLimiter_RetryAfter(t *testing.T) {
	tests := []struct {
		name        string
		elapsed     time.Duration
		wantMinutes int
		wantSeconds int
	}{
		{"start of window", 0, 60, 3600},
		{"half a minute in", 30 * time.Second, 60, 3570},
		{"one minute in", time.Minute, 59, 3540},
		{"thirty seconds left", 59*time.Minute + 30*time.Second, 1, 30},
		{"at the boundary", time.Hour, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClock()
			l := newTestLimiter(t, c, 1)
			ctx := context.Background()

			l.Check(ctx, "k")
			c.Advance(tt.elapsed)

			d, err := l.Check(ctx, "k")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed {
				t.Fatal("expected denial")
			}
			if d.RetryAfterMinutes != tt.wantMinutes {
				t.Errorf("expected %d minutes, got %d", tt.wantMinutes, d.RetryAfterMinutes)
			}
			if d.RetryAfterSeconds() != tt.wantSeconds {
				t.Errorf("expected %d seconds, got %d", tt.wantSeconds, d.RetryAfterSeconds())
			}
		})
	}
}

func TestLimiter_Rollover(t *testing.T) {
	c := newClock()
	l := newTestLimiter(t, c, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Check(ctx, "k")
	}

	// At exactly windowResetAt the old window still applies
	c.Advance(time.Hour)
	d, _ := l.Check(ctx, "k")
	if d.Allowed {
		t.Error("request at the reset instant should still be in the old window")
	}

	c.Advance(time.Millisecond)
	d, _ = l.Check(ctx, "k")
	if !d.Allowed {
		t.Fatal("request after the window should be allowed")
	}
	if d.Count != 1 {
		t.Errorf("expected count 1 after rollover, got %d", d.Count)
	}
	if !d.ResetAt.Equal(c.Now().Add(time.Hour)) {
		t.Errorf("expected new window to end at %v, got %v", c.Now().Add(time.Hour), d.ResetAt)
	}
}

func TestLimiter_KeysIsolated(t *testing.T) {
	c := newClock()
	l := newTestLimiter(t, c, 1)
	ctx := context.Background()

	l.Check(ctx, "a")
	if d, _ := l.Check(ctx, "a"); d.Allowed {
		t.Error("second request for a should be denied")
	}
	if d, _ := l.Check(ctx, "b"); !d.Allowed {
		t.Error("first request for b should be allowed")
	}
}

func TestLimiter_Fallback(t *testing.T) {
	c := newClock()
	l, err := NewLimiter(&Config{
		Window:      time.Hour,
		MaxRequests: 1,
		Store:       &failingStore{err: errors.New("redis: connection refused")},
		Fallback:    newStore(t),
		Logger:      quietLogger(),
		Now:         c.Now,
	})
	if err != nil {
		t.Fatal(err)
	}

	d, err := l.Check(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected fallback to absorb the error, got %v", err)
	}
	if !d.Allowed || !d.Degraded {
		t.Errorf("expected degraded allow, got %+v", d)
	}

	d, _ = l.Check(context.Background(), "k")
	if d.Allowed {
		t.Error("fallback store should still enforce the quota")
	}
}

func TestLimiter_StoreErrorWithoutFallback(t *testing.T) {
	storeErr := errors.New("redis: connection refused")
	l, err := NewLimiter(&Config{
		Window:      time.Hour,
		MaxRequests: 1,
		Store:       &failingStore{err: storeErr},
		Logger:      quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = l.Check(context.Background(), "k")
	if !errors.Is(err, storeErr) {
		t.Errorf("expected store error to surface, got %v", err)
	}
}

func TestLimiter_OnDecision(t *testing.T) {
	c := newClock()
	var seen []Decision
	l, err := NewLimiter(&Config{
		Window:      time.Hour,
		MaxRequests: 1,
		Store:       newStore(t),
		Logger:      quietLogger(),
		Now:         c.Now,
		OnDecision:  func(d Decision) { seen = append(seen, d) },
	})
	if err != nil {
		t.Fatal(err)
	}

	l.Check(context.Background(), "k")
	l.Check(context.Background(), "k")

	if len(seen) != 2 {
		t.Fatalf("expected 2 observed decisions, got %d", len(seen))
	}
	if !seen[0].Allowed || seen[1].Allowed {
		t.Errorf("unexpected decisions %+v", seen)
	}
	if seen[1].Key != "k" {
		t.Errorf("expected key on decision, got %q", seen[1].Key)
	}
}

func TestDecisionMessage(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{1, "Too many requests. Try again in 1 minute."},
		{2, "Too many requests. Try again in 2 minutes."},
		{60, "Too many requests. Try again in 60 minutes."},
	}

	for _, tt := range tests {
		d := Decision{RetryAfterMinutes: tt.minutes}
		if got := d.Message(); got != tt.want {
			t.Errorf("Message() = %q, want %q", got, tt.want)
		}
	}
}

func TestLimiter_UsingFallback(t *testing.T) {
	primary := &failingStore{err: errors.New("redis: connection refused")}
	l, err := NewLimiter(&Config{
		Window:      time.Hour,
		MaxRequests: 5,
		Store:       primary,
		Fallback:    newStore(t),
		Logger:      quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if l.UsingFallback() {
		t.Error("no decision yet, fallback should not be active")
	}

	if _, err := l.Check(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if !l.UsingFallback() {
		t.Error("expected fallback active after a primary failure")
	}

	primary.err = nil
	if _, err := l.Check(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if l.UsingFallback() {
		t.Error("expected fallback cleared once the primary answers")
	}
}
