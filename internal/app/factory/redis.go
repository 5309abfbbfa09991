package factory

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"dreamproxy/internal/config"
	"dreamproxy/internal/telemetry"
	"dreamproxy/pkg/errors"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// CreateRedisClient creates a Redis client from configuration and checks
// the connection. With telemetry enabled the client emits spans and
// connection pool metrics.
func CreateRedisClient(cfg *config.Redis, tel *telemetry.Telemetry, logger *slog.Logger) (*redis.Client, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrorTypeConfiguration, "Redis configuration is nil")
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	opts := &redis.Options{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  connectTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	client := redis.NewClient(opts)

	if tel != nil && tel.Enabled() {
		if err := redisotel.InstrumentTracing(client, redisotel.WithTracerProvider(tel.TracerProvider())); err != nil {
			client.Close()
			return nil, fmt.Errorf("instrumenting redis tracing: %w", err)
		}
		if err := redisotel.InstrumentMetrics(client, redisotel.WithMeterProvider(tel.MeterProvider())); err != nil {
			client.Close()
			return nil, fmt.Errorf("instrumenting redis metrics: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "failed to connect to Redis").WithCause(err)
	}

	logger.Info("Connected to Redis",
		"addr", opts.Addr,
		"db", cfg.DB,
		"poolSize", cfg.PoolSize,
	)

	return client, nil
}
