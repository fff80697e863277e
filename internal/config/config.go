package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{
		Catalog:  CatalogConfig{Seed: true},
		Receipts: ReceiptsConfig{Enabled: true},
		Metrics:  MetricsConfig{Enabled: true},
	}
	applyDefaults(&cfg)
	return cfg
}
