package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Finalization policies understood by the root chain.
const (
	PolicyStopAtFirstImmature = "stop-at-first-immature"
	PolicySkipImmature        = "skip-immature"
)

// NetworkConfig holds network-level configuration for HTTP clients
type NetworkConfig struct {
	DelayEnabled bool `json:"delay_enabled" yaml:"delay_enabled"`
	MinDelayMs   int  `json:"min_delay_ms" yaml:"min_delay_ms"` // Minimum delay in milliseconds
	MaxDelayMs   int  `json:"max_delay_ms" yaml:"max_delay_ms"` // Maximum delay in milliseconds
}

// Config holds all configurable parameters for the application
type Config struct {
	Port       int    `json:"port" yaml:"port"`
	StorageDir string `json:"storage_dir" yaml:"storage_dir"` // empty = in-memory
	Authority  string `json:"authority" yaml:"authority"`     // operator address allowed to submit blocks

	ExitPeriod         uint64 `json:"exit_period" yaml:"exit_period"`     // logical time units (seconds)
	MinExitBond        uint64 `json:"min_exit_bond" yaml:"min_exit_bond"` // wei
	MaxFinalizePerCall int    `json:"max_finalize_per_call" yaml:"max_finalize_per_call"`
	FinalizePolicy     string `json:"finalize_policy" yaml:"finalize_policy"`

	// ClockTickMs advances logical time from the wall clock. 0 disables the ticker.
	ClockTickMs int `json:"clock_tick_ms" yaml:"clock_tick_ms"`

	Network NetworkConfig `json:"network" yaml:"network"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Port:               8080,
		ExitPeriod:         7 * 24 * 60 * 60,
		MinExitBond:        10000,
		MaxFinalizePerCall: 128,
		FinalizePolicy:     PolicyStopAtFirstImmature,
	}
}

// Validate rejects configurations the root chain cannot run with
func (c *Config) Validate() error {
	switch c.FinalizePolicy {
	case PolicyStopAtFirstImmature, PolicySkipImmature:
	default:
		return fmt.Errorf("unknown finalize policy %q", c.FinalizePolicy)
	}
	if c.MaxFinalizePerCall < 0 {
		return fmt.Errorf("max_finalize_per_call must not be negative")
	}
	if c.Network.DelayEnabled && c.Network.MaxDelayMs < c.Network.MinDelayMs {
		return fmt.Errorf("network max_delay_ms below min_delay_ms")
	}
	return nil
}

// Load reads and parses a config file. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON. Missing fields keep their Default() values.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the default config from config.json in the config directory
func LoadDefault() (*Config, error) {
	return Load("config/config.json")
}
