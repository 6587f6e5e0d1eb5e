package mode

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the routing thresholds. Scores at or above LocalThreshold
// stay local; scores at or below CloudThreshold may go to the cloud
// sandbox; everything between runs hybrid.
type Config struct {
	LocalThreshold float64 `yaml:"local_threshold"`
	CloudThreshold float64 `yaml:"cloud_threshold"`
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() *Config {
	return &Config{
		LocalThreshold: 0.8,
		CloudThreshold: 0.3,
	}
}

// LoadConfig loads thresholds from a YAML file. Missing file returns
// defaults. Invalid YAML or inverted thresholds return an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("mode: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mode: parse config: %w", err)
	}
	if cfg.CloudThreshold >= cfg.LocalThreshold {
		return nil, fmt.Errorf("mode: cloud_threshold %v must be below local_threshold %v",
			cfg.CloudThreshold, cfg.LocalThreshold)
	}
	return cfg, nil
}
