package management

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	httpadapter "dreamproxy/internal/adapter/http"
	"dreamproxy/internal/core"
	"dreamproxy/internal/middleware"
	"dreamproxy/internal/middleware/auth/jwt"
	"dreamproxy/internal/middleware/ratelimit"
	"dreamproxy/internal/storage"
	"dreamproxy/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// QuotaSource is the limiter state the API inspects
type QuotaSource interface {
	Policy() ratelimit.Policy
	Store() storage.QuotaStore
}

// Config for the admin API
type Config struct {
	// RequestsPerMinute throttles each caller IP (0 = unlimited)
	RequestsPerMinute int
	// Middleware wraps every admin handler, outermost first. Authentication
	// belongs here.
	Middleware []core.Middleware
}

// API provides quota inspection endpoints for operators
type API struct {
	quotas    QuotaSource
	config    Config
	logger    *slog.Logger
	startTime time.Time
	now       func() time.Time
}

// NewAPI creates a new management API
func NewAPI(quotas QuotaSource, cfg Config, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		quotas:    quotas,
		config:    cfg,
		logger:    logger.With("component", "management-api"),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Register mounts the admin routes on r. It is meant to be called on the
// /admin sub-router.
func (api *API) Register(r chi.Router, adapter *httpadapter.Adapter) {
	if api.config.RequestsPerMinute > 0 {
		r.Use(httprate.Limit(
			api.config.RequestsPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpadapter.WriteError(w, http.StatusTooManyRequests, "Too many requests.")
			}),
		))
	}

	chain := middleware.Chain(api.config.Middleware...)

	r.Method(http.MethodGet, "/quotas/{key}", adapter.Handle(chain(api.GetQuota)))
	r.Method(http.MethodDelete, "/quotas/{key}", adapter.Handle(chain(api.ResetQuota)))
	r.Method(http.MethodGet, "/stats", adapter.Handle(chain(api.Stats)))
}

// QuotaResponse describes one client's quota
type QuotaResponse struct {
	Key           string    `json:"key"`
	Count         int       `json:"count"`
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining"`
	WindowResetAt time.Time `json:"windowResetAt"`
	// Expired records are still held but the next request starts a new window
	Expired bool `json:"expired"`
}

// StatsResponse summarises the limiter
type StatsResponse struct {
	Uptime        string `json:"uptime"`
	Window        string `json:"window"`
	WindowSeconds int64  `json:"windowSeconds"`
	MaxRequests   int    `json:"maxRequests"`
	// Records is omitted when the store cannot count its entries
	Records *int `json:"records,omitempty"`
}

// GetQuota handles GET /admin/quotas/{key}
func (api *API) GetQuota(ctx context.Context, req core.Request) (core.Response, error) {
	key, err := quotaKey(ctx)
	if err != nil {
		return nil, err
	}

	rec, ok, err := api.quotas.Store().Get(ctx, key)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "Internal server error").
			WithDetail("key", key).
			WithCause(err)
	}
	if !ok {
		return nil, errors.NewError(errors.ErrorTypeNotFound, "Quota not found.").WithDetail("key", key)
	}

	limit := api.quotas.Policy().MaxRequests
	return core.JSON(http.StatusOK, QuotaResponse{
		Key:           rec.Key,
		Count:         rec.Count,
		Limit:         limit,
		Remaining:     max(limit-rec.Count, 0),
		WindowResetAt: rec.WindowResetAt,
		Expired:       api.now().After(rec.WindowResetAt),
	})
}

// ResetQuota handles DELETE /admin/quotas/{key}
func (api *API) ResetQuota(ctx context.Context, req core.Request) (core.Response, error) {
	key, err := quotaKey(ctx)
	if err != nil {
		return nil, err
	}

	if err := api.quotas.Store().Reset(ctx, key); err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "Internal server error").
			WithDetail("key", key).
			WithCause(err)
	}

	operator := ""
	if info, ok := jwt.FromContext(ctx); ok {
		operator = info.Subject
	}
	api.logger.Info("quota reset", "key", key, "operator", operator, "id", req.ID())

	return core.NewResponse(http.StatusNoContent, nil), nil
}

// Stats handles GET /admin/stats
func (api *API) Stats(ctx context.Context, req core.Request) (core.Response, error) {
	policy := api.quotas.Policy()

	resp := StatsResponse{
		Uptime:        time.Since(api.startTime).Round(time.Second).String(),
		Window:        policy.Window.String(),
		WindowSeconds: int64(policy.Window / time.Second),
		MaxRequests:   policy.MaxRequests,
	}
	if sizer, ok := api.quotas.Store().(storage.Sizer); ok {
		n := sizer.Len()
		resp.Records = &n
	}

	return core.JSON(http.StatusOK, resp)
}

func quotaKey(ctx context.Context) (string, error) {
	raw := chi.URLParamFromCtx(ctx, "key")
	key, err := url.PathUnescape(raw)
	if err != nil || key == "" {
		return "", errors.NewError(errors.ErrorTypeBadRequest, "Invalid quota key.").WithDetail("key", raw)
	}
	return key, nil
}
