// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/campreserv/chatkit/internal/api"
)

// =============================================================================
// SOCKET DRIVER
// =============================================================================

// Socket reconnect backoff.
const (
	socketBaseDelay = 500 * time.Millisecond
	socketMaxDelay  = 10 * time.Second
)

// SocketDriver holds one persistent bidirectional connection for the whole
// widget session. Fragments for any response arrive on the same socket;
// the connection is re-established with exponential backoff after a drop.
//
// Sends while disconnected fail fast with ErrDisconnected rather than
// queueing, so stale messages are never delivered after a long outage.
type SocketDriver struct {
	client *api.Client
	events chan api.StreamEvent

	connected atomic.Bool

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	closed bool
	done   chan struct{}
}

// sendFrame is the outgoing socket frame shape.
type sendFrame struct {
	Type string `json:"type"`
	api.SendRequest
}

// NewSocketDriver creates a socket driver over the backend client.
func NewSocketDriver(client *api.Client) *SocketDriver {
	return &SocketDriver{
		client: client,
		events: make(chan api.StreamEvent, 64),
		done:   make(chan struct{}),
	}
}

// Start dials the socket and launches the read loop. Returns after the
// first dial attempt resolves; later drops reconnect in the background.
func (d *SocketDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	conn, err := d.dial(runCtx)
	if err != nil {
		// First dial failed; the run loop keeps retrying so a backend
		// that comes up late still connects.
		log.Printf("chat socket: initial dial failed: %v", err)
	} else {
		d.setConn(conn)
	}

	go d.run(runCtx)
	return nil
}

// dial opens the websocket against the chat endpoint with auth headers.
func (d *SocketDriver) dial(ctx context.Context) (*websocket.Conn, error) {
	url := socketURL(d.client.BaseURL()) + "/api/v1/chat/ws"

	header := http.Header{}
	header.Set("User-Agent", "campreserv-chatkit/1.0")
	if token := d.client.Scope().AuthToken; token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("socket dial failed: %w", err)
	}
	return conn, nil
}

// run owns the connection: reads fragments until the connection drops, then
// reconnects with exponential backoff until ctx is canceled.
func (d *SocketDriver) run(ctx context.Context) {
	defer close(d.done)

	attempt := 0
	for {
		conn := d.currentConn()
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(socketBackoff(attempt)):
			}
			attempt++

			c, err := d.dial(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("chat socket: reconnect attempt %d failed: %v", attempt, err)
				continue
			}
			d.setConn(c)
			conn = c
		}

		attempt = 0
		d.readLoop(ctx, conn)

		d.dropConn(conn)
		if ctx.Err() != nil {
			return
		}
		log.Printf("chat socket: connection lost, reconnecting")
	}
}

// readLoop reads fragments from one connection until it fails.
func (d *SocketDriver) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var event api.StreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// Skip malformed frames rather than dropping the connection.
			continue
		}
		d.emit(event)
	}
}

// Send writes one message frame. Fails immediately with ErrDisconnected
// while no connection is live.
func (d *SocketDriver) Send(ctx context.Context, req api.SendRequest) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	conn := d.conn
	d.mu.Unlock()

	if conn == nil || !d.connected.Load() {
		return ErrDisconnected
	}

	data, err := json.Marshal(sendFrame{Type: "send", SendRequest: req})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (d *SocketDriver) emit(e api.StreamEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.events <- e
}

// Events returns the fragment channel.
func (d *SocketDriver) Events() <-chan api.StreamEvent {
	return d.events
}

// Connected reports whether a connection is currently live.
func (d *SocketDriver) Connected() bool {
	return d.connected.Load()
}

// Close tears down the connection and closes the event channel.
func (d *SocketDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn := d.conn
	d.conn = nil
	cancel := d.cancel
	d.mu.Unlock()

	d.connected.Store(false)
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	if cancel != nil {
		cancel()
		<-d.done
	}

	d.mu.Lock()
	close(d.events)
	d.mu.Unlock()
	return nil
}

// =============================================================================
// CONNECTION BOOKKEEPING
// =============================================================================

func (d *SocketDriver) setConn(conn *websocket.Conn) {
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	d.connected.Store(true)
}

func (d *SocketDriver) currentConn() *websocket.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

// dropConn clears the connection if it is still the current one.
func (d *SocketDriver) dropConn(conn *websocket.Conn) {
	d.mu.Lock()
	if d.conn == conn {
		d.conn = nil
		d.connected.Store(false)
	}
	d.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
}

// socketBackoff returns the reconnect delay for the given attempt.
func socketBackoff(attempt int) time.Duration {
	if attempt == 0 {
		return 0
	}
	delay := socketBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > socketMaxDelay {
		delay = socketMaxDelay
	}
	return delay
}

// socketURL rewrites an http(s) base URL to the ws(s) scheme.
func socketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
