package factory

import (
	"fmt"
	"log/slog"

	"dreamproxy/internal/config"
	"dreamproxy/internal/metrics"
	"dreamproxy/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

// CreateMetrics creates the Prometheus metrics on reg, nil when disabled
func CreateMetrics(cfg *config.Metrics, reg *prometheus.Registry) *metrics.Metrics {
	if !ShouldEnableMetrics(cfg) {
		return nil
	}
	return metrics.NewWithRegistry(reg, reg)
}

// ShouldEnableMetrics checks if metrics should be enabled
func ShouldEnableMetrics(cfg *config.Metrics) bool {
	return cfg != nil && cfg.Enabled
}

// CreateTelemetry creates the OpenTelemetry providers. OTel metrics share reg
// with the Prometheus metrics when those are enabled.
func CreateTelemetry(cfg *config.Telemetry, metricsCfg *config.Metrics, reg *prometheus.Registry, logger *slog.Logger) (*telemetry.Telemetry, error) {
	var registerer prometheus.Registerer
	if ShouldEnableMetrics(metricsCfg) {
		registerer = reg
	}

	tel, err := telemetry.New(cfg, registerer)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}

	if tel.Enabled() {
		logger.Info("Telemetry enabled",
			"service", cfg.ServiceName,
			"version", cfg.Version,
			"tracing", cfg.Tracing != nil && cfg.Tracing.Enabled,
		)
	}
	return tel, nil
}
