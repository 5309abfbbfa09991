package ratelimit

import (
	"context"

	"dreamproxy/internal/core"
	"dreamproxy/pkg/errors"
)

// Middleware rejects requests from clients over their quota. The counter is
// updated before next runs, so a denied or allowed request is always counted
// before any upstream work starts.
func Middleware(l *Limiter) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			key := l.keyFunc(req)

			d, err := l.Check(ctx, key)
			if err != nil {
				l.logger.Error("rate limit check failed",
					"key", key,
					"path", req.Path(),
					"error", err,
				)
				return nil, errors.NewError(errors.ErrorTypeInternal, "Internal server error").
					WithDetail("key", key).
					WithCause(err)
			}

			if !d.Allowed {
				l.logger.Warn("rate limit exceeded",
					"key", key,
					"path", req.Path(),
					"count", d.Count,
					"retry_after_minutes", d.RetryAfterMinutes,
				)
				return nil, errors.NewError(errors.ErrorTypeRateLimit, d.Message()).
					WithDetail("key", key).
					WithDetail("count", d.Count).
					WithDetail("limit", d.Limit).
					WithDetail(RetryAfterDetail, d.RetryAfterSeconds())
			}

			return next(ctx, req)
		}
	}
}

// RetryAfterDetail is the error detail carrying the Retry-After seconds
const RetryAfterDetail = "retryAfterSeconds"
