package factory

import (
	"fmt"
	"log/slog"
	"net/http"

	"dreamproxy/internal/config"
	"dreamproxy/internal/core"
	"dreamproxy/internal/management"
	"dreamproxy/internal/metrics"
	"dreamproxy/internal/middleware"
	"dreamproxy/internal/middleware/auth/jwt"
	"dreamproxy/internal/middleware/cors"
	metricsMiddleware "dreamproxy/internal/middleware/metrics"
	"dreamproxy/internal/middleware/recovery"
	"dreamproxy/internal/telemetry"
)

// RouteMiddleware returns the chain every routed core handler runs behind,
// outermost first: panic recovery, request logging, route metrics and a
// span named after the route.
func RouteMiddleware(route string, m *metrics.Metrics, tel *telemetry.Telemetry, logger *slog.Logger) []core.Middleware {
	chain := []core.Middleware{
		recovery.Default(logger),
		middleware.Logging(logger),
	}
	if m != nil {
		chain = append(chain, metricsMiddleware.Middleware(m, route))
	}
	if tel != nil && tel.Enabled() {
		chain = append(chain, tel.Middleware(route))
	}
	return chain
}

// CreateCORSHandler wraps next with CORS handling, or returns next as is
// when CORS is disabled
func CreateCORSHandler(cfg *config.CORS, next http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return next
	}
	return cors.New(cors.FromConfig(cfg)).Handler(next)
}

// CreateAdminAPI creates the quota admin API. It returns nil when the API is
// disabled or no signing secret is configured.
func CreateAdminAPI(cfg *config.Admin, quotas management.QuotaSource, m *metrics.Metrics, tel *telemetry.Telemetry, logger *slog.Logger) (*management.API, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.JWTSecret == "" {
		logger.Warn("Admin API enabled without a JWT secret, not mounting it")
		return nil, nil
	}

	provider, err := jwt.NewProvider(jwt.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating admin token provider: %w", err)
	}

	chain := append(RouteMiddleware("/admin", m, tel, logger), jwt.Middleware(provider, logger))

	logger.Info("Admin API enabled", "requestsPerMinute", cfg.RequestsPerMinute)
	return management.NewAPI(quotas, management.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Middleware:        chain,
	}, logger), nil
}
