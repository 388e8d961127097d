// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"

	"github.com/campreserv/chatkit/internal/api"
)

// =============================================================================
// DRIVER CONTRACT
// =============================================================================

// Kind names a driver implementation, selected by configuration.
type Kind string

const (
	KindHTTP   Kind = "http"
	KindSocket Kind = "socket"
	KindSSE    Kind = "sse"
)

// Error variables shared by drivers.
var (
	// ErrDisconnected is returned by Send while a connection-oriented
	// driver has no live connection. Sends fail fast instead of queueing
	// so stale context is never delivered after a long outage; the caller
	// surfaces it as a retryable error.
	ErrDisconnected = errors.New("transport disconnected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport closed")
)

// Driver is the abstract session transport. All assistant output — full
// messages or incremental fragments — arrives on Events as StreamEvents;
// the conversation manager reduces them into the message list.
type Driver interface {
	// Start establishes any persistent connection. Request-scoped drivers
	// treat it as a no-op.
	Start(ctx context.Context) error

	// Send dispatches one outgoing user message. A nil return means the
	// message was handed to the backend (or, for streaming drivers, that
	// the response stream was opened); fragments follow on Events.
	Send(ctx context.Context, req api.SendRequest) error

	// Events is the ordered stream of response fragments. Closed by Close.
	Events() <-chan api.StreamEvent

	// Connected reports connection state. Request-scoped drivers always
	// report true.
	Connected() bool

	// Close tears the transport down and closes Events. Required on
	// widget unmount so socket connections are not leaked.
	Close() error
}

// New builds a driver of the given kind over the backend client.
func New(kind Kind, client *api.Client) Driver {
	switch kind {
	case KindSocket:
		return NewSocketDriver(client)
	case KindSSE:
		return NewSSEDriver(client)
	default:
		return NewHTTPDriver(client)
	}
}
