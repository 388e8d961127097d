// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the client for the Campreserv chat backend.
//
// The backend is a stable collaborator: this package only knows the shape
// of its request and response bodies, never its business logic. All
// network-boundary errors are converted into typed errors here so upper
// layers can turn them into UI-visible state instead of unhandled
// failures.
package api
