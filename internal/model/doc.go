// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat conversations:
// messages and their typed parts, tool calls and results, attachments,
// action-required payloads, and conversation summaries.
//
// The model package has no transport or UI dependencies. Everything that
// arrives over the wire is normalized into these types before any other
// layer touches it.
package model
