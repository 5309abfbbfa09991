package metrics

import (
	"context"
	"time"

	"dreamproxy/internal/core"
	"dreamproxy/internal/metrics"
	"dreamproxy/pkg/errors"
)

// Middleware records request count, status and latency for one route.
// route is the label value; raw paths are never used so admin keys do not
// become series.
func Middleware(m *metrics.Metrics, route string) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			m.ActiveRequests.Inc()
			defer m.ActiveRequests.Dec()

			start := time.Now()
			resp, err := next(ctx, req)

			status := 200
			switch {
			case err != nil:
				status = errors.StatusOf(err)
			case resp != nil:
				status = resp.StatusCode()
			}
			m.RecordRequest(req.Method(), route, status, time.Since(start))

			return resp, err
		}
	}
}
