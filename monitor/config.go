package monitor

import (
	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/config"
)

// Config re-exports the configuration model so callers outside the
// module root stay decoupled from the internal packages.
type Config = config.Config

// Secrets holds credentials and sink endpoints read from the
// environment.
type Secrets = config.Secrets

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// SecretsFromEnv reads secrets from the process environment.
func SecretsFromEnv() Secrets {
	return config.SecretsFromEnv()
}
