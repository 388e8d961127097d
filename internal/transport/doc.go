// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the interchangeable session drivers that move
// messages between the chat client and the backend, plus the shared
// reducer that folds streamed fragments into the message list.
//
// Three drivers satisfy the same contract: a request/response driver (one
// HTTP call per send, complete reply), an event-stream driver (one SSE
// stream per send), and a socket driver (persistent bidirectional
// connection with automatic reconnect). Fragment reduction is factored
// into Reducer so no driver duplicates it.
package transport
