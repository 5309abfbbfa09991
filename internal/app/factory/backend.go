package factory

import (
	"net"
	"net/http"
	"time"

	"dreamproxy/internal/backend"
	"dreamproxy/internal/config"
	"dreamproxy/internal/metrics"
	"dreamproxy/internal/telemetry"
)

// CreateHTTPClient creates the shared outbound client. It has no overall
// timeout: model calls may run long and are bounded by the caller's context.
func CreateHTTPClient(tel *telemetry.Telemetry) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	var rt http.RoundTripper = transport
	if tel != nil {
		rt = tel.Transport(transport)
	}

	return &http.Client{Transport: rt}
}

// CreateUpstream creates the upstream client with the configured credential
// and model. Calls are observed by m when metrics are enabled.
func CreateUpstream(cfg config.Upstream, client *http.Client, m *metrics.Metrics) *backend.Upstream {
	u := backend.NewUpstream(client, cfg.URL, cfg.Name, SettingsFrom(cfg))
	if m != nil {
		u.WithObserver(m.ObserveUpstream)
	}
	return u
}

// SettingsFrom extracts the runtime-swappable upstream settings
func SettingsFrom(cfg config.Upstream) backend.Settings {
	return backend.Settings{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	}
}
