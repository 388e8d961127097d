// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the chat widget:
// UTF-8 safe truncation, display-width handling for terminal layout, byte
// size formatting, and crash-safe file writes.
package util
