package http

import (
	"time"

	"dreamproxy/internal/config"
)

// Config holds HTTP listener configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ConfigFrom converts the server section of the proxy configuration
func ConfigFrom(s config.Server) Config {
	return Config{
		Host:         s.Host,
		Port:         s.Port,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}
}
