package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"dreamproxy/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration from the embedded defaults, an optional file
// and the environment
type Loader struct {
	path string
}

// NewLoader creates a config loader. An empty path loads defaults and environment only.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the config file path
func (l *Loader) Path() string {
	return l.path
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	cfg, err := LoadDefault()
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to parse default config").WithCause(err)
	}

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to read config file").WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to parse config").WithCause(err)
		}
	}

	if err := LoadEnv(cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to load env vars").WithCause(err)
	}

	if err := loadCredentialFile(&cfg.Proxy.Upstream); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to read credential file").WithCause(err)
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfiguration, "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

// loadCredentialFile fills an empty APIKey from APIKeyFile. A missing file
// leaves the proxy without a credential rather than failing startup.
func loadCredentialFile(up *Upstream) error {
	if up.APIKey != "" || up.APIKeyFile == "" {
		return nil
	}
	data, err := os.ReadFile(up.APIKeyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	up.APIKey = strings.TrimSpace(string(data))
	return nil
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	p := cfg.Proxy

	if p.Server.Port <= 0 || p.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", p.Server.Port)
	}
	if p.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server maxBodyBytes must be positive")
	}

	if p.Upstream.URL == "" {
		return fmt.Errorf("upstream url is required")
	}
	if u, err := url.Parse(p.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream url: %q", p.Upstream.URL)
	}
	if p.Upstream.Model == "" {
		return fmt.Errorf("upstream model is required")
	}
	if p.Upstream.MaxInputChars <= 0 {
		return fmt.Errorf("upstream maxInputChars must be positive")
	}

	rl := p.RateLimit
	if rl.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if rl.MaxRequests <= 0 {
		return fmt.Errorf("rate limit maxRequests must be positive")
	}
	switch rl.Storage {
	case "", "memory":
	case "redis":
		if rl.Redis == nil {
			return fmt.Errorf("redis configuration is required for redis storage")
		}
		if rl.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown rate limit storage: %s", rl.Storage)
	}

	if p.Admin != nil && p.Admin.Enabled && p.Admin.JWTSecret == "" {
		return fmt.Errorf("admin API requires a jwtSecret")
	}

	return nil
}
