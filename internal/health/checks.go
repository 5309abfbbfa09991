package health

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoCredential is reported while the upstream credential is unset
var ErrNoCredential = errors.New("upstream credential not configured")

type degradedError struct{ err error }

func (e *degradedError) Error() string { return e.err.Error() }
func (e *degradedError) Unwrap() error { return e.err }

// Degraded marks a check error as degraded: reported by /health but not
// failing /ready
func Degraded(err error) error {
	return &degradedError{err: err}
}

// IsDegraded reports whether err was marked with Degraded
func IsDegraded(err error) bool {
	var d *degradedError
	return errors.As(err, &d)
}

// CredentialCheck fails while hasCredential reports false. The credential
// can appear later through a config reload, so it is evaluated per run.
func CredentialCheck(hasCredential func() bool) Check {
	return func(ctx context.Context) error {
		if !hasCredential() {
			return ErrNoCredential
		}
		return nil
	}
}

// Pinger is a dependency that can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a store or client
func PingCheck(name string, p Pinger) Check {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
		return nil
	}
}

// FallbackCheck pings a primary store backed by an in-process fallback. It
// reports degraded while the primary is unreachable or the fallback is still
// serving quotas.
func FallbackCheck(name string, p Pinger, usingFallback func() bool) Check {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return Degraded(fmt.Errorf("%s ping failed, quotas served from memory: %w", name, err))
		}
		if usingFallback() {
			return Degraded(fmt.Errorf("%s reachable, quotas still served from memory", name))
		}
		return nil
	}
}
