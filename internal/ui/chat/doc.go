// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the terminal presentation shell for the Campreserv chat
// widget. It is a Bubble Tea program that composes the conversation
// manager, the attachment tray, and the history browser into three views:
//
//   - chat: the live transcript with composer, tray row, and status bar
//   - history: the conversation browser with search and date windows
//   - transcript: a read-only past conversation, resumable into chat
//
// The package holds no domain state of its own. Every mutation goes
// through the state managers; the model here only translates key presses
// into manager calls and manager updates into rendered frames.
package chat
