// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for wehochat.
//
// Supports TOML configuration with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.wehochat/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete wehochat configuration.
type Config struct {
	// Backend configuration
	Backend BackendConfig `toml:"backend"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`
}

// BackendConfig contains chat backend configuration.
type BackendConfig struct {
	// BaseURL is the chat backend base URL
	BaseURL string `toml:"base_url"`
	// Language is the response language submitted with every chat turn
	Language string `toml:"language"`
	// RequestTimeoutSecs is the timeout for non-streaming requests in seconds
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// RequestsPerSec caps the outbound request rate
	RequestsPerSec float64 `toml:"requests_per_sec"`
	// Burst is the rate limiter burst size
	Burst int `toml:"burst"`
}

// StorageConfig contains local persistence configuration.
type StorageConfig struct {
	// DataDir is the directory holding local state (empty = ~/.wehochat)
	DataDir string `toml:"data_dir"`
	// GuestDBFile is the guest history database filename within DataDir
	GuestDBFile string `toml:"guest_db_file"`
	// ProfileFile is the stored profile filename within DataDir
	ProfileFile string `toml:"profile_file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:            "https://api.weho.websitetestingbox.com/api/v1",
			Language:           "English",
			RequestTimeoutSecs: 30,
			RequestsPerSec:     5,
			Burst:              10,
		},
		Storage: StorageConfig{
			DataDir:     "",
			GuestDBFile: "guest.db",
			ProfileFile: "profile.json",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the wehochat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".wehochat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when none exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation. A missing file is not an error; defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# wehochat configuration file")
	fmt.Fprintln(file, "# Generated by wehochat - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns the first error found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ValidationError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Backend.BaseURL),
		}
	}
	if c.Backend.RequestTimeoutSecs < 1 || c.Backend.RequestTimeoutSecs > 600 {
		return ValidationError{
			Field:   "backend.request_timeout_secs",
			Message: fmt.Sprintf("must be 1-600, got %d", c.Backend.RequestTimeoutSecs),
		}
	}
	if c.Backend.RequestsPerSec <= 0 {
		return ValidationError{
			Field:   "backend.requests_per_sec",
			Message: "must be positive",
		}
	}
	if c.Backend.Burst < 1 {
		return ValidationError{
			Field:   "backend.burst",
			Message: "must be at least 1",
		}
	}
	return nil
}

// SetDefaults sets default values for any missing configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaults.Backend.BaseURL
	}
	if c.Backend.Language == "" {
		c.Backend.Language = defaults.Backend.Language
	}
	if c.Backend.RequestTimeoutSecs == 0 {
		c.Backend.RequestTimeoutSecs = defaults.Backend.RequestTimeoutSecs
	}
	if c.Backend.RequestsPerSec == 0 {
		c.Backend.RequestsPerSec = defaults.Backend.RequestsPerSec
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = defaults.Backend.Burst
	}
	if c.Storage.GuestDBFile == "" {
		c.Storage.GuestDBFile = defaults.Storage.GuestDBFile
	}
	if c.Storage.ProfileFile == "" {
		c.Storage.ProfileFile = defaults.Storage.ProfileFile
	}
}

// DataDir resolves the effective data directory, defaulting to the config
// directory when unset.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return ConfigDir()
}

// GuestDBPath resolves the full path to the guest history database.
func (c *Config) GuestDBPath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.GuestDBFile), nil
}

// ProfilePath resolves the full path to the stored profile file.
func (c *Config) ProfilePath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.ProfileFile), nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - WEHOCHAT_BACKEND_URL: overrides backend.base_url
//   - WEHOCHAT_LANGUAGE: overrides backend.language
//   - WEHOCHAT_TIMEOUT_SECS: overrides backend.request_timeout_secs
//   - WEHOCHAT_DATA_DIR: overrides storage.data_dir
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("WEHOCHAT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("WEHOCHAT_LANGUAGE"); v != "" {
		c.Backend.Language = v
	}
	if v := os.Getenv("WEHOCHAT_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Backend.RequestTimeoutSecs = secs
		}
	}
	if v := os.Getenv("WEHOCHAT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
}
