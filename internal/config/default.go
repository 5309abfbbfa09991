package config

import (
	_ "embed"
	"net"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultCredentialEnv is the environment variable holding the upstream key
const DefaultCredentialEnv = "OPENAI_API_KEY"

//go:embed default.yaml
var defaultConfigYAML string

// LoadDefault loads the default embedded configuration
func LoadDefault() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
