// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"sync"

	"github.com/campreserv/chatkit/internal/api"
)

// =============================================================================
// EVENT-STREAM DRIVER
// =============================================================================

// SSEDriver opens one server-sent event stream per send and forwards its
// fragments onto the shared event channel. Streams are request-scoped:
// canceling one send never disturbs another, and there is no connection to
// keep alive between sends.
type SSEDriver struct {
	client *api.Client
	events chan api.StreamEvent

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSSEDriver creates an event-stream driver over the backend client.
func NewSSEDriver(client *api.Client) *SSEDriver {
	return &SSEDriver{
		client: client,
		events: make(chan api.StreamEvent, 64),
	}
}

// Start is a no-op; streams are opened per send.
func (d *SSEDriver) Start(ctx context.Context) error {
	return nil
}

// Send opens the response stream and returns once it is being consumed.
// Stream failures after the initial response surface as an Err fragment so
// the manager can fail the pending user message.
func (d *SSEDriver) Send(ctx context.Context, req api.SendRequest) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		err := d.client.StreamSend(ctx, req, func(e api.StreamEvent) {
			d.emit(e)
		})
		if err != nil {
			d.emit(api.StreamEvent{Err: err})
		}
	}()
	return nil
}

func (d *SSEDriver) emit(e api.StreamEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.events <- e
}

// Events returns the fragment channel.
func (d *SSEDriver) Events() <-chan api.StreamEvent {
	return d.events
}

// Connected always reports true; streams are opened on demand.
func (d *SSEDriver) Connected() bool {
	return true
}

// Close marks the driver closed and closes the event channel once in-flight
// streams have drained.
func (d *SSEDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	close(d.events)
	return nil
}
