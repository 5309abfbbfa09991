package factory

import (
	"dreamproxy/internal/backend"
	"dreamproxy/internal/health"
	"dreamproxy/internal/middleware/ratelimit"
	"dreamproxy/internal/storage"
)

// CreateHealthChecker registers the credential check and, for stores backed
// by a remote service, a ping check. With a fallback store the ping check
// reports degraded instead of failing readiness.
func CreateHealthChecker(upstream *backend.Upstream, stores *QuotaStores, limiter *ratelimit.Limiter) *health.Checker {
	checker := health.NewChecker()

	checker.RegisterCheck("credential", health.CredentialCheck(func() bool {
		return upstream.Settings().APIKey != ""
	}))

	if pinger, ok := stores.Primary.(storage.Pinger); ok {
		if stores.Fallback != nil {
			checker.RegisterCheck(stores.Type, health.FallbackCheck(stores.Type, pinger, limiter.UsingFallback))
		} else {
			checker.RegisterCheck(stores.Type, health.PingCheck(stores.Type, pinger))
		}
	}

	return checker
}
