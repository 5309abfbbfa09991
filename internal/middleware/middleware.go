package middleware

import (
	"context"
	"log/slog"
	"time"

	"dreamproxy/internal/core"
	"dreamproxy/internal/telemetry"
	"dreamproxy/pkg/errors"
)

// Chain combines multiple middleware, the first being outermost
func Chain(middlewares ...core.Middleware) core.Middleware {
	return func(next core.Handler) core.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logging adds request logging
func Logging(logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			start := time.Now()

			logger.Debug("request",
				"id", req.ID(),
				"method", req.Method(),
				"path", req.Path(),
			)

			resp, err := next(ctx, req)

			status := 0
			if err != nil {
				status = errors.StatusOf(err)
			} else if resp != nil {
				status = resp.StatusCode()
			}

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			attrs := []any{
				"id", req.ID(),
				"method", req.Method(),
				"path", req.Path(),
				"status", status,
				"duration", time.Since(start),
				"error", err,
			}
			if traceID := telemetry.TraceID(ctx); traceID != "" {
				attrs = append(attrs, "trace_id", traceID)
			}
			logger.Log(ctx, level, "response", attrs...)

			return resp, err
		}
	}
}
