// Package cors answers browser preflights and decorates responses with the
// Access-Control headers the web client needs.
package cors

import (
	"net/http"
	"strconv"
	"strings"

	"dreamproxy/internal/config"
)

// Config holds CORS configuration
type Config struct {
	// AllowedOrigins lists allowed origins; "*" allows any
	AllowedOrigins []string
	// AllowedMethods lists methods announced in preflights
	AllowedMethods []string
	// AllowedHeaders lists accepted request headers. Empty or "*" reflects
	// whatever the preflight asks for.
	AllowedHeaders []string
	// ExposedHeaders lists response headers scripts may read
	ExposedHeaders []string
	// AllowCredentials permits cookies and auth headers cross-origin
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds
	MaxAge int
}

// DefaultConfig allows every origin, the way the public web client expects
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		ExposedHeaders: []string{"Retry-After", "X-Request-ID"},
		MaxAge:         86400,
	}
}

// FromConfig converts the proxy's CORS section
func FromConfig(c *config.CORS) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if len(c.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = c.AllowedOrigins
	}
	if len(c.AllowedMethods) > 0 {
		cfg.AllowedMethods = c.AllowedMethods
	}
	if c.AllowedHeaders != nil {
		cfg.AllowedHeaders = c.AllowedHeaders
	}
	if c.ExposedHeaders != nil {
		cfg.ExposedHeaders = c.ExposedHeaders
	}
	cfg.AllowCredentials = c.AllowCredentials
	if c.MaxAge > 0 {
		cfg.MaxAge = c.MaxAge
	}
	return cfg
}

// CORS provides Cross-Origin Resource Sharing middleware
type CORS struct {
	config         Config
	anyOrigin      bool
	anyHeader      bool
	allowedOrigins map[string]bool
	allowedHeaders map[string]bool
	methods        string
}

// New creates a CORS handler
func New(cfg Config) *CORS {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = DefaultConfig().AllowedMethods
	}

	c := &CORS{
		config:         cfg,
		allowedOrigins: make(map[string]bool),
		allowedHeaders: make(map[string]bool),
		methods:        strings.Join(cfg.AllowedMethods, ", "),
		anyHeader:      len(cfg.AllowedHeaders) == 0,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			c.anyOrigin = true
		}
		c.allowedOrigins[strings.ToLower(origin)] = true
	}
	for _, header := range cfg.AllowedHeaders {
		if header == "*" {
			c.anyHeader = true
		}
		c.allowedHeaders[strings.ToLower(header)] = true
	}
	return c
}

// Handler wraps next. Preflights are answered with 204 and never reach next.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			c.handlePreflight(w, r, origin)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		c.setOrigin(w.Header(), origin)
		if origin != "" && len(c.config.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(c.config.ExposedHeaders, ", "))
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) handlePreflight(w http.ResponseWriter, r *http.Request, origin string) {
	headers := w.Header()
	if !c.setOrigin(headers, origin) {
		return
	}

	if c.isMethodAllowed(r.Header.Get("Access-Control-Request-Method")) {
		headers.Set("Access-Control-Allow-Methods", c.methods)
	}

	if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" && c.areHeadersAllowed(reqHeaders) {
		headers.Set("Access-Control-Allow-Headers", reqHeaders)
		headers.Add("Vary", "Access-Control-Request-Headers")
	}

	if c.config.MaxAge > 0 {
		headers.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
	}
}

// setOrigin writes Allow-Origin and reports whether origin is allowed
func (c *CORS) setOrigin(headers http.Header, origin string) bool {
	if origin == "" {
		return false
	}

	// a literal "*" cannot be combined with credentials
	if c.anyOrigin && !c.config.AllowCredentials {
		headers.Set("Access-Control-Allow-Origin", "*")
		return true
	}
	if !c.anyOrigin && !c.allowedOrigins[strings.ToLower(origin)] {
		return false
	}

	headers.Set("Access-Control-Allow-Origin", origin)
	headers.Add("Vary", "Origin")
	if c.config.AllowCredentials {
		headers.Set("Access-Control-Allow-Credentials", "true")
	}
	return true
}

func (c *CORS) isMethodAllowed(method string) bool {
	for _, allowed := range c.config.AllowedMethods {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

func (c *CORS) areHeadersAllowed(headers string) bool {
	if c.anyHeader {
		return true
	}
	for _, header := range strings.Split(headers, ",") {
		if !c.allowedHeaders[strings.TrimSpace(strings.ToLower(header))] {
			return false
		}
	}
	return true
}
