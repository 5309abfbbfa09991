package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"dreamproxy/internal/core"
	proxyerrors "dreamproxy/pkg/errors"
)

// Config holds recovery middleware configuration
type Config struct {
	// StackTrace logs the goroutine stack with the panic
	StackTrace bool
	// PanicHandler is called when a panic occurs (optional)
	PanicHandler func(ctx context.Context, recovered any, stack []byte)
}

// Middleware turns a handler panic into an internal error, which the
// adapter renders as a 500 envelope. The panic value stays in the logs.
func Middleware(config Config, logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (resp core.Response, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := debug.Stack()

				attrs := []any{
					"id", req.ID(),
					"method", req.Method(),
					"path", req.Path(),
					"panic", r,
				}
				if config.StackTrace {
					attrs = append(attrs, "stack", string(stack))
				}
				logger.Error("panic recovered", attrs...)

				if config.PanicHandler != nil {
					config.PanicHandler(ctx, r, stack)
				}

				resp = nil
				err = proxyerrors.NewError(proxyerrors.ErrorTypeInternal, "Internal server error").
					WithDetail("panic", fmt.Sprintf("%v", r))
			}()

			return next(ctx, req)
		}
	}
}

// Default creates recovery middleware that logs stack traces
func Default(logger *slog.Logger) core.Middleware {
	return Middleware(Config{StackTrace: true}, logger)
}
