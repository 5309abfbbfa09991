package jwt

import (
	"context"
	"log/slog"

	"dreamproxy/internal/core"
	"dreamproxy/pkg/errors"
)

type contextKey struct{}

// WithAuthInfo stores the authenticated operator in ctx
func WithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// FromContext returns the operator stored by the middleware
func FromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(contextKey{}).(*AuthInfo)
	return info, ok
}

// Middleware rejects requests without a valid bearer token
func Middleware(p *Provider, logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			token, ok := BearerToken(req.Headers())
			if !ok {
				return nil, errors.NewError(errors.ErrorTypeUnauthorized, "authentication required")
			}

			info, err := p.Authenticate(ctx, token)
			if err != nil {
				logger.Warn("admin authentication failed",
					"id", req.ID(),
					"remote", req.RemoteAddr(),
					"error", err,
				)
				return nil, err
			}

			return next(WithAuthInfo(ctx, info), req)
		}
	}
}
