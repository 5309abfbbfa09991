package config

import (
	"time"
)

// Config holds proxy configuration
type Config struct {
	Proxy Proxy `yaml:"proxy"`
}

// Proxy configuration
type Proxy struct {
	Service   string     `yaml:"service"`
	Server    Server     `yaml:"server"`
	Upstream  Upstream   `yaml:"upstream"`
	RateLimit RateLimit  `yaml:"rateLimit"`
	CORS      *CORS      `yaml:"cors,omitempty"`
	Metrics   *Metrics   `yaml:"metrics,omitempty"`
	Telemetry *Telemetry `yaml:"telemetry,omitempty"`
	Admin     *Admin     `yaml:"admin,omitempty"`
	Watch     Watch      `yaml:"watch"`
}

// Server configuration for the inbound HTTP listener
type Server struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	// MaxBodyBytes caps the JSON body accepted by the forwarding route
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
}

// Upstream configuration for the third-party API
type Upstream struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// APIKey is the bearer credential injected into outbound calls.
	// It is normally supplied through CredentialEnv or APIKeyFile, not the file itself.
	APIKey        string `yaml:"apiKey"`
	APIKeyFile    string `yaml:"apiKeyFile"`
	CredentialEnv string `yaml:"credentialEnv"`
	Model         string `yaml:"model"`
	MaxInputChars int    `yaml:"maxInputChars"`
}

// RateLimit configuration
type RateLimit struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"maxRequests"`
	Storage     string        `yaml:"storage"` // memory or redis
	MaxEntries  int           `yaml:"maxEntries"`
	GracePeriod time.Duration `yaml:"gracePeriod"`
	Redis       *Redis        `yaml:"redis,omitempty"`

	// TrustForwardedFor keys clients on X-Forwarded-For when present
	TrustForwardedFor bool `yaml:"trustForwardedFor"`
}

// Redis configuration for shared quota storage
type Redis struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	PoolSize       int           `yaml:"poolSize"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	KeyPrefix      string        `yaml:"keyPrefix"`
}

// CORS configuration
type CORS struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	ExposedHeaders   []string `yaml:"exposedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// Metrics configuration
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Telemetry configuration
type Telemetry struct {
	Enabled     bool     `yaml:"enabled"`
	ServiceName string   `yaml:"serviceName"`
	Version     string   `yaml:"version"`
	Tracing     *Tracing `yaml:"tracing,omitempty"`
}

// Tracing configuration
type Tracing struct {
	Enabled    bool              `yaml:"enabled"`
	Endpoint   string            `yaml:"endpoint"`
	SampleRate float64           `yaml:"sampleRate"`
	Headers    map[string]string `yaml:"headers"`
}

// Admin configuration for the quota management API
type Admin struct {
	Enabled           bool   `yaml:"enabled"`
	JWTSecret         string `yaml:"jwtSecret"`
	Issuer            string `yaml:"issuer"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

// Watch configuration for hot reload of config and credential files
type Watch struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Addr returns the listen address
func (s Server) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// HasCredential reports whether an upstream credential is configured
func (u Upstream) HasCredential() bool {
	return u.APIKey != ""
}

// CredentialName returns the name operators use to provision the credential
func (u Upstream) CredentialName() string {
	if u.CredentialEnv != "" {
		return u.CredentialEnv
	}
	return DefaultCredentialEnv
}
