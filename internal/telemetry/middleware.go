package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dreamproxy/internal/core"
	"dreamproxy/pkg/errors"
)

func (t *Telemetry) otelhttpOptions() []otelhttp.Option {
	return []otelhttp.Option{
		otelhttp.WithTracerProvider(t.tracerProvider),
		otelhttp.WithMeterProvider(t.meterProvider),
		otelhttp.WithPropagators(t.propagator),
	}
}

// WrapHTTP starts a server span for every inbound request
func (t *Telemetry) WrapHTTP(next http.Handler, operation string) http.Handler {
	if !t.enabled {
		return next
	}
	return otelhttp.NewHandler(next, operation, t.otelhttpOptions()...)
}

// Transport instruments outbound calls with client spans and trace headers
func (t *Telemetry) Transport(base http.RoundTripper) http.RoundTripper {
	if !t.enabled {
		return base
	}
	return otelhttp.NewTransport(base, t.otelhttpOptions()...)
}

// Middleware wraps a core handler in an internal span
func (t *Telemetry) Middleware(name string) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			ctx, span := t.tracer.Start(ctx, name,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String("request.id", req.ID()),
					attribute.String("request.path", req.Path()),
				),
			)
			defer span.End()

			resp, err := next(ctx, req)

			status := 0
			if err != nil {
				status = errors.StatusOf(err)
				span.RecordError(err)
			} else if resp != nil {
				status = resp.StatusCode()
			}
			span.SetAttributes(attribute.Int("response.status", status))

			if status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp, err
		}
	}
}

// TraceID returns the trace ID of the span in ctx, or ""
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
