// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/campreserv/chatkit/internal/model"
)

// =============================================================================
// STREAM WIRE PROTOCOL
// =============================================================================

// MaxChunkSize is the maximum allowed size for a single SSE event (64KB).
const MaxChunkSize = 64 * 1024

// StreamEventType discriminates the wire shape of a streamed fragment.
type StreamEventType string

const (
	EventDelta      StreamEventType = "delta"
	EventToolCall   StreamEventType = "tool_call"
	EventToolResult StreamEventType = "tool_result"
	EventAction     StreamEventType = "action_required"
	EventMessage    StreamEventType = "message"
	EventDone       StreamEventType = "done"
)

// StreamEvent is one fragment of an in-progress assistant response, shared
// by the event-stream and socket transports.
type StreamEvent struct {
	Type           StreamEventType       `json:"type"`
	ResponseID     string                `json:"responseId,omitempty"`
	ConversationID string                `json:"conversationId,omitempty"`
	MessageID      string                `json:"messageId,omitempty"`
	Content        string                `json:"content,omitempty"`
	ToolCall       *model.ToolCall       `json:"toolCall,omitempty"`
	ToolResult     *model.ToolResult     `json:"toolResult,omitempty"`
	Action         *model.ActionRequired `json:"action,omitempty"`
	Message        *model.Message        `json:"message,omitempty"`

	// Err carries a transport-level failure when delivering events over a
	// channel. Never set by the backend.
	Err error `json:"-"`
}

// IsTerminal reports whether the event ends its response.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone
}

// StreamCallback is called for each event received on a stream.
type StreamCallback func(event StreamEvent)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event from the stream, returning the event
// type and data. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	var total int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		total += len(line)
		if total > MaxChunkSize {
			return "", nil, fmt.Errorf("SSE event too large: %d bytes", total)
		}

		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(line[6:]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAMING SEND
// =============================================================================

// StreamSend posts a message to the event-stream endpoint and invokes the
// callback for each fragment until the terminal event or stream end.
// The stream is per-request: cancellation via ctx affects only this send.
func (c *Client) StreamSend(ctx context.Context, req SendRequest, callback StreamCallback) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/chat/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	logRequest(httpReq)
	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := readResponse(resp)
		return handleErrorResponse(resp.StatusCode, body)
	}

	return processStream(ctx, resp.Body, callback)
}

// processStream reads and processes the SSE stream.
func processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var event StreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// Skip malformed events rather than aborting the response.
			continue
		}

		callback(event)

		if event.IsTerminal() {
			return nil
		}
	}
}
