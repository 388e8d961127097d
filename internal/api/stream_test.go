// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_ReadEvent(t *testing.T) {
	input := "event: fragment\ndata: {\"type\":\"delta\"}\n\ndata: {\"type\":\"done\"}\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	eventType, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if eventType != "fragment" {
		t.Errorf("eventType = %q", eventType)
	}
	if string(data) != `{"type":"delta"}` {
		t.Errorf("data = %q", data)
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if string(data) != `{"type":"done"}` {
		t.Errorf("data = %q", data)
	}

	if _, _, err = reader.ReadEvent(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestSSEReader_MultilineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if string(data) != "line1\nline2" {
		t.Errorf("data = %q", data)
	}
}

func TestSSEReader_CarriageReturns(t *testing.T) {
	input := "data: payload\r\n\r\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q", data)
	}
}

func TestSSEReader_DataBeforeEOF(t *testing.T) {
	// An event not followed by a blank line is still delivered at EOF.
	reader := NewSSEReader(strings.NewReader("data: tail"))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if string(data) != "tail" {
		t.Errorf("data = %q", data)
	}
}

// =============================================================================
// STREAMING SEND TESTS
// =============================================================================

func TestClient_StreamSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("Accept = %q", accept)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"delta\",\"responseId\":\"resp_1\",\"content\":\"Two \"}\n\n")
		io.WriteString(w, "data: {\"type\":\"delta\",\"responseId\":\"resp_1\",\"content\":\"sites.\"}\n\n")
		io.WriteString(w, "data: not-json\n\n")
		io.WriteString(w, "data: {\"type\":\"done\",\"responseId\":\"resp_1\",\"conversationId\":\"conv_7\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, testScope())

	var events []StreamEvent
	err := client.StreamSend(context.Background(), SendRequest{Text: "hi"}, func(e StreamEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("StreamSend failed: %v", err)
	}

	// Malformed event is skipped, not fatal.
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Content != "Two " || events[1].Content != "sites." {
		t.Errorf("delta contents = %q, %q", events[0].Content, events[1].Content)
	}
	last := events[2]
	if !last.IsTerminal() {
		t.Error("last event should be terminal")
	}
	if last.ConversationID != "conv_7" {
		t.Errorf("ConversationID = %q", last.ConversationID)
	}
}

func TestClient_StreamSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"auth","message":"expired"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testScope())
	err := client.StreamSend(context.Background(), SendRequest{Text: "hi"}, func(StreamEvent) {
		t.Error("callback should not run on error status")
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_StreamSendCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"delta\",\"responseId\":\"resp_1\",\"content\":\"x\"}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, testScope())
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.StreamSend(ctx, SendRequest{Text: "hi"}, func(e StreamEvent) {
			cancel()
		})
	}()

	if err := <-errCh; err == nil {
		t.Fatal("expected cancellation error")
	}
}
