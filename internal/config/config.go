// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/campreserv/chatkit/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete chat widget configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend connection settings
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Session identity: who this widget speaks for
	Session SessionConfig `toml:"session" json:"session"`

	// UI settings
	UI UIConfig `toml:"ui" json:"ui"`
}

// BackendConfig contains chat backend connection configuration.
type BackendConfig struct {
	// BaseURL is the chat backend base URL.
	BaseURL string `toml:"base_url" json:"base_url"`

	// Transport selects the session driver: "http", "sse", or "socket".
	Transport string `toml:"transport" json:"transport"`

	// MaxRetries caps retry attempts for request/response calls.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// SessionConfig contains the embedding contract: the identity the host
// application hands to the widget.
type SessionConfig struct {
	// CampgroundID scopes every conversation to one property.
	CampgroundID string `toml:"campground_id" json:"campground_id"`

	// Mode is "guest" or "staff".
	Mode string `toml:"mode" json:"mode"`

	// ParticipantID is the guest id in guest mode, staff id in staff mode.
	ParticipantID string `toml:"participant_id" json:"participant_id"`

	// AuthToken authenticates the participant. Empty enables anonymous
	// guest mode (no uploads, no history).
	AuthToken string `toml:"auth_token" json:"auth_token"`

	// InitialMessage is sent automatically on first open, e.g. a
	// campaign prompt. Empty sends nothing.
	InitialMessage string `toml:"initial_message" json:"initial_message"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`

	// ShowTimestamps displays per-message timestamps.
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`

	// CompactMode uses a more compact layout.
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`

	// Markdown renders assistant messages as markdown. Disable for plain
	// text on terminals that render glamour badly.
	Markdown bool `toml:"markdown" json:"markdown"`

	// ArtifactAutoOpenStaff auto-opens the structured-result panel in
	// staff mode. Guests always click through.
	ArtifactAutoOpenStaff bool `toml:"artifact_auto_open_staff" json:"artifact_auto_open_staff"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			BaseURL:    "https://api.campreserv.com",
			Transport:  "sse",
			MaxRetries: 3,
		},

		Session: SessionConfig{
			Mode: "guest",
		},

		UI: UIConfig{
			Theme:                 "dark",
			ShowTimestamps:        true,
			CompactMode:           false,
			Markdown:              true,
			ArtifactAutoOpenStaff: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the Campreserv configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".campreserv"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chatkit.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chatkit.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 to protect the auth token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err = finish(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// finish applies env overrides, defaults and validation, in that order.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = defaults.Backend.BaseURL
	}
	if cfg.Backend.Transport == "" {
		cfg.Backend.Transport = defaults.Backend.Transport
	}
	if cfg.Backend.MaxRetries == 0 {
		cfg.Backend.MaxRetries = defaults.Backend.MaxRetries
	}
	if cfg.Session.Mode == "" {
		cfg.Session.Mode = defaults.Session.Mode
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHATKIT_* environment variables over the
// loaded values. Host applications embed the widget by setting these
// instead of shipping a config file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATKIT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("CHATKIT_TRANSPORT"); v != "" {
		c.Backend.Transport = v
	}
	if v := os.Getenv("CHATKIT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.MaxRetries = n
		}
	}
	if v := os.Getenv("CHATKIT_CAMPGROUND_ID"); v != "" {
		c.Session.CampgroundID = v
	}
	if v := os.Getenv("CHATKIT_MODE"); v != "" {
		c.Session.Mode = v
	}
	if v := os.Getenv("CHATKIT_PARTICIPANT_ID"); v != "" {
		c.Session.ParticipantID = v
	}
	if v := os.Getenv("CHATKIT_AUTH_TOKEN"); v != "" {
		c.Session.AuthToken = v
	}
	if v := os.Getenv("CHATKIT_INITIAL_MESSAGE"); v != "" {
		c.Session.InitialMessage = v
	}
	if v := os.Getenv("CHATKIT_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("CHATKIT_MARKDOWN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UI.Markdown = b
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# Campreserv chat widget configuration")
	fmt.Fprintln(file, "# Edit with care; the auth token lives here")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
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

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", c.Backend.BaseURL),
		})
	}

	validTransports := map[string]bool{"http": true, "sse": true, "socket": true}
	if !validTransports[strings.ToLower(c.Backend.Transport)] {
		errs = append(errs, ValidationError{
			Field:   "backend.transport",
			Message: fmt.Sprintf("must be one of http, sse, socket; got %q", c.Backend.Transport),
		})
	}

	if c.Backend.MaxRetries < 1 || c.Backend.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "backend.max_retries",
			Message: fmt.Sprintf("must be between 1 and 10, got %d", c.Backend.MaxRetries),
		})
	}

	if c.Session.CampgroundID == "" {
		errs = append(errs, ValidationError{
			Field:   "session.campground_id",
			Message: "is required; the widget is always scoped to one campground",
		})
	}

	mode := strings.ToLower(c.Session.Mode)
	if mode != "guest" && mode != "staff" {
		errs = append(errs, ValidationError{
			Field:   "session.mode",
			Message: fmt.Sprintf("must be guest or staff, got %q", c.Session.Mode),
		})
	}
	// Staff mode is always authenticated; anonymous staff makes no sense.
	if mode == "staff" && c.Session.AuthToken == "" {
		errs = append(errs, ValidationError{
			Field:   "session.auth_token",
			Message: "is required in staff mode",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("must be dark, light or auto, got %q", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
