// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"sync"

	"github.com/campreserv/chatkit/internal/api"
)

// =============================================================================
// REQUEST/RESPONSE DRIVER
// =============================================================================

// HTTPDriver is the simplest transport: one HTTP round trip per send, the
// complete assistant reply in the response. It synthesizes a message
// fragment plus a terminal fragment onto the event channel so the manager
// reduces it exactly like a streamed response.
type HTTPDriver struct {
	client *api.Client
	events chan api.StreamEvent

	mu     sync.Mutex
	closed bool
}

// NewHTTPDriver creates a request/response driver over the backend client.
func NewHTTPDriver(client *api.Client) *HTTPDriver {
	return &HTTPDriver{
		client: client,
		events: make(chan api.StreamEvent, 16),
	}
}

// Start is a no-op; the driver holds no persistent connection.
func (d *HTTPDriver) Start(ctx context.Context) error {
	return nil
}

// Send posts the message and emits the complete reply as two fragments.
// Blocks for the round trip; the manager runs sends off the UI loop.
func (d *HTTPDriver) Send(ctx context.Context, req api.SendRequest) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.mu.Unlock()

	resp, err := d.client.Send(ctx, req)
	if err != nil {
		return err
	}

	if resp.Message != nil {
		d.emit(api.StreamEvent{
			Type:           api.EventMessage,
			ResponseID:     resp.ResponseID,
			ConversationID: resp.ConversationID,
			Message:        resp.Message,
		})
	}
	d.emit(api.StreamEvent{
		Type:           api.EventDone,
		ResponseID:     resp.ResponseID,
		ConversationID: resp.ConversationID,
	})
	return nil
}

// emit delivers an event unless the driver was closed underneath us.
func (d *HTTPDriver) emit(e api.StreamEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.events <- e
}

// Events returns the fragment channel.
func (d *HTTPDriver) Events() <-chan api.StreamEvent {
	return d.events
}

// Connected always reports true; there is no connection to lose.
func (d *HTTPDriver) Connected() bool {
	return true
}

// Close closes the event channel. Subsequent sends fail with ErrClosed.
func (d *HTTPDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.events)
	return nil
}
