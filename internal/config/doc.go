// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the chat widget host.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.campreserv/chatkit.toml
//   - ~/.campreserv/chatkit.json
//   - Built-in defaults
//
// Every file value can be overridden with a CHATKIT_* environment
// variable; see ApplyEnvOverrides.
package config
