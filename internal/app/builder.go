package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	httpAdapter "dreamproxy/internal/adapter/http"
	"dreamproxy/internal/app/factory"
	"dreamproxy/internal/config"
	"dreamproxy/internal/core"
	"dreamproxy/internal/handler"
	"dreamproxy/internal/health"
	"dreamproxy/internal/middleware"
	"dreamproxy/internal/middleware/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DefaultVersion is reported by /health when no build version is set
const DefaultVersion = "dev"

// Builder builds the proxy application
type Builder struct {
	config  *config.Config
	loader  *config.Loader
	version string
	logger  *slog.Logger
}

// NewBuilder creates a new application builder
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{
		config:  cfg,
		version: DefaultVersion,
		logger:  logger,
	}
}

// WithLoader sets the loader used to reload configuration at runtime
func (b *Builder) WithLoader(loader *config.Loader) *Builder {
	b.loader = loader
	return b
}

// WithVersion sets the build version
func (b *Builder) WithVersion(version string) *Builder {
	if version != "" {
		b.version = version
	}
	return b
}

// Build constructs the proxy server
func (b *Builder) Build() (_ *Server, err error) {
	p := &b.config.Proxy

	reg := prometheus.NewRegistry()
	if factory.ShouldEnableMetrics(p.Metrics) {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	proxyMetrics := factory.CreateMetrics(p.Metrics, reg)

	tel, err := factory.CreateTelemetry(p.Telemetry, p.Metrics, reg, b.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tel.Shutdown(context.Background())
		}
	}()

	stores, err := factory.CreateQuotaStores(&p.RateLimit, tel, proxyMetrics, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating quota store: %w", err)
	}
	defer func() {
		if err != nil {
			stores.Close()
		}
	}()

	limiter, err := factory.CreateLimiter(&p.RateLimit, stores, proxyMetrics, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating rate limiter: %w", err)
	}

	upstream := factory.CreateUpstream(p.Upstream, factory.CreateHTTPClient(tel), proxyMetrics)
	if !p.Upstream.HasCredential() {
		b.logger.Warn("Upstream credential not configured, forwarding will fail until it is provided",
			"env", p.Upstream.CredentialName(),
		)
	}

	forwarder := handler.NewForwarder(upstream, handler.Config{
		CredentialName: p.Upstream.CredentialName(),
		MaxInputChars:  p.Upstream.MaxInputChars,
		MaxBodyBytes:   p.Server.MaxBodyBytes,
	}, b.logger)

	adapter := httpAdapter.New(b.logger)

	dreamChain := append(factory.RouteMiddleware("/api/dream", proxyMetrics, tel, b.logger), ratelimit.Middleware(limiter))
	statusChain := factory.RouteMiddleware("/", proxyMetrics, tel, b.logger)

	routes := httpAdapter.Routes{
		Status: adapter.Handle(middleware.Chain(statusChain...)(statusHandler(p.Service))),
		Dream:  adapter.Handle(middleware.Chain(dreamChain...)(forwarder.Handle)),
		Health: health.NewHandler(factory.CreateHealthChecker(upstream, stores, limiter), b.version, p.Service),
	}

	if proxyMetrics != nil {
		routes.Metrics = proxyMetrics.Handler()
		routes.MetricsPath = p.Metrics.Path
		b.logger.Info("Metrics enabled", "path", p.Metrics.Path)
	}

	adminAPI, err := factory.CreateAdminAPI(p.Admin, limiter, proxyMetrics, tel, b.logger)
	if err != nil {
		return nil, err
	}
	if adminAPI != nil {
		routes.Admin = func(r chi.Router) { adminAPI.Register(r, adapter) }
	}

	var root http.Handler = httpAdapter.NewRouter(routes)
	root = factory.CreateCORSHandler(p.CORS, root)
	root = tel.WrapHTTP(root, "dreamproxy")

	return &Server{
		config:    b.config,
		loader:    b.loader,
		http:      httpAdapter.NewServer(httpAdapter.ConfigFrom(p.Server), root, b.logger),
		adapter:   adapter,
		handler:   root,
		upstream:  upstream,
		stores:    stores,
		telemetry: tel,
		logger:    b.logger,
	}, nil
}

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// statusHandler answers GET / regardless of credential or quota state
func statusHandler(service string) core.Handler {
	return func(ctx context.Context, req core.Request) (core.Response, error) {
		return core.JSON(http.StatusOK, statusResponse{Status: "ok", Service: service})
	}
}
