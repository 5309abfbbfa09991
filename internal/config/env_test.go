package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadEnv(t *testing.T) {
	clearLegacyEnv(t)

	testEnvVars := map[string]string{
		"DREAMPROXY_PROXY_SERVER_HOST":              "127.0.0.1",
		"DREAMPROXY_PROXY_SERVER_PORT":              "9090",
		"DREAMPROXY_PROXY_RATELIMIT_WINDOW":         "15m",
		"DREAMPROXY_PROXY_RATELIMIT_MAXREQUESTS":    "3",
		"DREAMPROXY_PROXY_METRICS_ENABLED":          "true",
		"DREAMPROXY_PROXY_METRICS_PATH":             "/custom-metrics",
		"DREAMPROXY_PROXY_CORS_ALLOWEDORIGINS":      "https://example.com, https://app.example.com",
		"DREAMPROXY_PROXY_RATELIMIT_REDIS_HOST":     "redis.internal",
		"DREAMPROXY_PROXY_TELEMETRY_TRACING_SAMPLERATE": "0.25",
	}
	for k, v := range testEnvVars {
		t.Setenv(k, v)
	}

	cfg := &Config{
		Proxy: Proxy{
			Server: Server{Host: "0.0.0.0", Port: 3000},
		},
	}

	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}

	p := cfg.Proxy
	if p.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", p.Server.Host)
	}
	if p.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", p.Server.Port)
	}
	if p.RateLimit.Window != 15*time.Minute {
		t.Errorf("Expected window 15m, got %v", p.RateLimit.Window)
	}
	if p.RateLimit.MaxRequests != 3 {
		t.Errorf("Expected maxRequests 3, got %d", p.RateLimit.MaxRequests)
	}

	if p.Metrics == nil {
		t.Fatal("Expected metrics config to be created")
	}
	if !p.Metrics.Enabled || p.Metrics.Path != "/custom-metrics" {
		t.Errorf("Unexpected metrics config %+v", p.Metrics)
	}

	if p.CORS == nil {
		t.Fatal("Expected CORS config to be created")
	}
	want := []string{"https://example.com", "https://app.example.com"}
	if !reflect.DeepEqual(p.CORS.AllowedOrigins, want) {
		t.Errorf("Expected origins %v, got %v", want, p.CORS.AllowedOrigins)
	}

	if p.RateLimit.Redis == nil || p.RateLimit.Redis.Host != "redis.internal" {
		t.Errorf("Expected nested redis host from env, got %+v", p.RateLimit.Redis)
	}

	if p.Telemetry == nil || p.Telemetry.Tracing == nil || p.Telemetry.Tracing.SampleRate != 0.25 {
		t.Errorf("Expected sample rate 0.25 from env, got %+v", p.Telemetry)
	}

	// Sections without variables stay nil
	if p.Admin != nil {
		t.Errorf("Expected admin config to stay nil, got %+v", p.Admin)
	}
}

func TestLoadEnvInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"invalid int", "DREAMPROXY_PROXY_SERVER_PORT", "abc"},
		{"invalid duration", "DREAMPROXY_PROXY_RATELIMIT_WINDOW", "an hour"},
		{"invalid bool", "DREAMPROXY_PROXY_WATCH_ENABLED", "maybe"},
		{"invalid float", "DREAMPROXY_PROXY_TELEMETRY_TRACING_SAMPLERATE", "half"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLegacyEnv(t)
			t.Setenv(tt.key, tt.value)

			err := LoadEnv(&Config{})
			if err == nil {
				t.Fatalf("Expected error for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Expected error to name %s, got %v", tt.key, err)
			}
		})
	}
}

func TestLegacyEnvOverridesStructured(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("DREAMPROXY_PROXY_UPSTREAM_MODEL", "structured-model")
	t.Setenv("MODEL", "legacy-model")

	cfg := &Config{}
	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if cfg.Proxy.Upstream.Model != "legacy-model" {
		t.Errorf("Expected legacy MODEL to win, got %q", cfg.Proxy.Upstream.Model)
	}
}

func TestCustomCredentialEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("UPSTREAM_TOKEN", "tok-123")

	cfg := &Config{Proxy: Proxy{Upstream: Upstream{CredentialEnv: "UPSTREAM_TOKEN"}}}
	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if cfg.Proxy.Upstream.APIKey != "tok-123" {
		t.Errorf("Expected credential from UPSTREAM_TOKEN, got %q", cfg.Proxy.Upstream.APIKey)
	}
}

func TestEnvExample(t *testing.T) {
	examples := EnvExample(&Config{})

	expected := []string{
		"DREAMPROXY_PROXY_SERVER_PORT=123",
		"DREAMPROXY_PROXY_SERVER_READTIMEOUT=30s",
		"DREAMPROXY_PROXY_UPSTREAM_APIKEY=value",
		"DREAMPROXY_PROXY_RATELIMIT_REDIS_HOST=value",
		"DREAMPROXY_PROXY_CORS_ALLOWEDORIGINS=value1,value2,value3",
		"DREAMPROXY_PROXY_METRICS_ENABLED=true",
		"DREAMPROXY_PROXY_TELEMETRY_TRACING_SAMPLERATE=1.5",
	}

	set := make(map[string]bool, len(examples))
	for _, e := range examples {
		set[e] = true
	}
	for _, e := range expected {
		if !set[e] {
			t.Errorf("Expected example %q", e)
		}
	}

	for _, e := range examples {
		if strings.Contains(e, "HEADERS") {
			t.Errorf("Map fields should not produce examples: %s", e)
		}
	}
}
