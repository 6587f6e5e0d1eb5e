// Package config holds the single governance configuration file that
// feeds every pipeline component: sensitivity rules, mode thresholds,
// gate settings, tool runtime defaults, and storage paths.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gk0729/LobsterShell/internal/gate"
	"github.com/gk0729/LobsterShell/internal/mode"
	"github.com/gk0729/LobsterShell/internal/overwrite"
	"github.com/gk0729/LobsterShell/internal/sensitivity"
)

// ToolConfig holds the tool runtime defaults.
type ToolConfig struct {
	Timeout     time.Duration     `yaml:"timeout"`
	PackagesDir string            `yaml:"packages_dir"`
	Available   map[string]string `yaml:"available_packages,omitempty"`
}

// OverwriteConfig wires the data overwriter: trusted sources and the
// placeholder rules resolved against them.
type OverwriteConfig struct {
	// SQLDriver is the database/sql driver name, "sqlite" by default.
	SQLDriver string            `yaml:"sql_driver,omitempty"`
	Sources   []OverwriteSource `yaml:"sources,omitempty"`
	Rules     []overwrite.Rule  `yaml:"rules,omitempty"`
}

// OverwriteSource declares one trusted backend. ReadOnly defaults to
// true when omitted.
type OverwriteSource struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Connection string `yaml:"connection"`
	ReadOnly   *bool  `yaml:"read_only,omitempty"`
}

// DataSource converts the YAML form to the overwriter's source type.
func (s *OverwriteSource) DataSource() *overwrite.DataSource {
	src := overwrite.NewDataSource(s.Name, overwrite.SourceType(s.Type), s.Connection)
	if s.ReadOnly != nil {
		src.ReadOnly = *s.ReadOnly
	}
	return src
}

// GovernanceConfig is the aggregate configuration.
type GovernanceConfig struct {
	SensitivityRules []sensitivity.Rule `yaml:"sensitivity_rules,omitempty"`
	Mode             mode.Config        `yaml:"mode"`
	Gate             gate.Config        `yaml:"gate"`
	Tools            ToolConfig         `yaml:"tools"`
	Overwrite        OverwriteConfig    `yaml:"overwrite"`

	AuditLogPath string `yaml:"audit_log_path"`
	PendingDir   string `yaml:"pending_dir"`
}

// DefaultConfig returns the built-in governance configuration.
func DefaultConfig() *GovernanceConfig {
	home := stateDir()
	return &GovernanceConfig{
		Mode: *mode.DefaultConfig(),
		Gate: *gate.DefaultConfig(),
		Tools: ToolConfig{
			Timeout: 30 * time.Second,
		},
		AuditLogPath: filepath.Join(home, "audit.jsonl"),
		PendingDir:   filepath.Join(home, "pending"),
	}
}

// Sensitivity wraps the configured rules for the analyzer. No rules
// configured means the analyzer's built-in defaults.
func (c *GovernanceConfig) Sensitivity() *sensitivity.Config {
	if len(c.SensitivityRules) == 0 {
		return nil
	}
	return &sensitivity.Config{Rules: c.SensitivityRules}
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "lobstershell")
	}
	return filepath.Join(home, ".lobstershell")
}

// DefaultPath returns where the governance file is looked up when no
// path is given.
func DefaultPath() string {
	return filepath.Join(stateDir(), "governance.yaml")
}

// LoadConfig loads governance configuration from a YAML file. Empty
// path falls back to the default location. Missing file returns
// defaults. Invalid YAML or invalid thresholds return an error.
func LoadConfig(path string) (*GovernanceConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads governance configuration and returns its
// SHA-256 hash over the raw YAML bytes on disk. When no file exists
// (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*GovernanceConfig, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("config: read governance config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("config: parse governance config: %w", err)
	}
	if cfg.Mode.CloudThreshold >= cfg.Mode.LocalThreshold {
		return nil, "", fmt.Errorf("config: cloud_threshold %v must be below local_threshold %v",
			cfg.Mode.CloudThreshold, cfg.Mode.LocalThreshold)
	}

	return cfg, hash, nil
}
