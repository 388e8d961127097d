// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Session.CampgroundID = "cg_1"
	return cfg
}

// =============================================================================
// DEFAULT AND VALIDATION TESTS
// =============================================================================

func TestDefault_IsValidOnceScoped(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"missing campground", func(c *Config) { c.Session.CampgroundID = "" }, "session.campground_id"},
		{"bad base url", func(c *Config) { c.Backend.BaseURL = "not a url" }, "backend.base_url"},
		{"ftp url", func(c *Config) { c.Backend.BaseURL = "ftp://example.com" }, "backend.base_url"},
		{"bad transport", func(c *Config) { c.Backend.Transport = "pigeon" }, "backend.transport"},
		{"retries too high", func(c *Config) { c.Backend.MaxRetries = 11 }, "backend.max_retries"},
		{"bad mode", func(c *Config) { c.Session.Mode = "admin" }, "session.mode"},
		{"staff without token", func(c *Config) { c.Session.Mode = "staff"; c.Session.AuthToken = "" }, "session.auth_token"},
		{"bad theme", func(c *Config) { c.UI.Theme = "solarized" }, "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var errs ValidateErrors
			if !errors.As(err, &errs) {
				t.Fatalf("err = %T, want ValidateErrors", err)
			}
			found := false
			for _, ve := range errs {
				if ve.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q in %v", tt.wantField, errs)
			}
		})
	}
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.toml")
	content := `
version = "1.0.0"

[backend]
base_url = "https://api.example.com"
transport = "socket"

[session]
campground_id = "cg_42"
mode = "staff"
participant_id = "staff_7"
auth_token = "tok_abc"

[ui]
theme = "light"
markdown = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Transport != "socket" {
		t.Errorf("Transport = %q", cfg.Backend.Transport)
	}
	if cfg.Session.CampgroundID != "cg_42" || cfg.Session.Mode != "staff" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.UI.Theme != "light" || cfg.UI.Markdown {
		t.Errorf("ui = %+v", cfg.UI)
	}
	// Unspecified values fall back to defaults.
	if cfg.Backend.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Backend.MaxRetries)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.json")
	content := `{
  "backend": {"base_url": "https://api.example.com"},
  "session": {"campground_id": "cg_1", "mode": "guest"}
}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
}

func TestLoadFromPath_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.toml")
	content := `
[backend]
transport = "pigeon"

[session]
campground_id = "cg_1"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadFromPath(path); err == nil || !strings.Contains(err.Error(), "backend.transport") {
		t.Errorf("err = %v, want transport validation failure", err)
	}
}

func TestLoadFromPath_FixesInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.toml")
	content := "[session]\ncampground_id = \"cg_1\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

// =============================================================================
// ENV OVERRIDE TESTS
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHATKIT_BACKEND_URL", "https://staging.campreserv.com")
	t.Setenv("CHATKIT_CAMPGROUND_ID", "cg_env")
	t.Setenv("CHATKIT_MODE", "staff")
	t.Setenv("CHATKIT_AUTH_TOKEN", "tok_env")
	t.Setenv("CHATKIT_TRANSPORT", "http")
	t.Setenv("CHATKIT_MARKDOWN", "false")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Backend.BaseURL != "https://staging.campreserv.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.CampgroundID != "cg_env" || cfg.Session.Mode != "staff" || cfg.Session.AuthToken != "tok_env" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Backend.Transport != "http" {
		t.Errorf("Transport = %q", cfg.Backend.Transport)
	}
	if cfg.UI.Markdown {
		t.Error("Markdown should be overridden to false")
	}
}

func TestApplyEnvOverrides_IgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("CHATKIT_MAX_RETRIES", "lots")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Backend.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default preserved", cfg.Backend.MaxRetries)
	}
}

// =============================================================================
// SAVE TESTS
// =============================================================================

func TestSaveTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.toml")
	cfg := validConfig()
	cfg.Session.AuthToken = "tok_secret"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Session.AuthToken != "tok_secret" {
		t.Errorf("AuthToken = %q after round trip", loaded.Session.AuthToken)
	}
}
