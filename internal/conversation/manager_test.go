// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
	"github.com/campreserv/chatkit/internal/transport"
)

func testScope(mode api.Mode) api.Scope {
	return api.Scope{
		CampgroundID:  "cg_1",
		Mode:          mode,
		ParticipantID: "p_1",
		AuthToken:     "tok_test",
		SessionID:     "sess_test",
	}
}

// newTestManager wires a manager over the request/response driver against
// the given backend.
func newTestManager(t *testing.T, serverURL string, mode api.Mode) *Manager {
	t.Helper()
	client := api.NewClient(serverURL, testScope(mode)).WithMaxRetries(1)
	m := NewManager(client, transport.NewHTTPDriver(client))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestManager_OptimisticEcho(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(api.SendResponse{
			ConversationID: "conv_1",
			ResponseID:     "resp_1",
			Message:        model.NewMessage(model.RoleAssistant, "Site A12 is open."),
		})
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, api.ModeGuest)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.SendMessage(context.Background(), "any sites for July 4?", nil, model.VisibilityPublic); err != nil {
			t.Errorf("SendMessage failed: %v", err)
		}
	}()

	// The echo appears pending before the backend has replied.
	waitFor(t, func() bool { return len(m.Messages(true)) == 1 })
	if got := m.Messages(true)[0]; got.Delivery != model.DeliveryPending {
		t.Errorf("Delivery = %q, want pending", got.Delivery)
	}

	close(release)
	wg.Wait()

	waitFor(t, func() bool { return len(m.Messages(true)) == 2 })
	msgs := m.Messages(true)
	if msgs[0].Delivery != model.DeliveryConfirmed {
		t.Errorf("Delivery = %q, want confirmed", msgs[0].Delivery)
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "Site A12 is open." {
		t.Errorf("assistant message = %+v", msgs[1])
	}
	waitFor(t, func() bool { return m.ConversationID() == "conv_1" })
	waitFor(t, func() bool { return !m.IsSending() && !m.IsTyping() })
}

func TestManager_SendFailureMarksFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"internal","message":"backend down"}}`))
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, api.ModeGuest)

	err := m.SendMessage(context.Background(), "hello?", nil, model.VisibilityPublic)
	if err == nil {
		t.Fatal("expected send error")
	}

	msgs := m.Messages(true)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want the failed echo to remain", len(msgs))
	}
	if msgs[0].Delivery != model.DeliveryFailed {
		t.Errorf("Delivery = %q, want failed", msgs[0].Delivery)
	}
	if msgs[0].SendError == "" {
		t.Error("expected inline send error")
	}
	if m.IsSending() {
		t.Error("sending flag should be cleared on failure")
	}
}

func TestManager_RetryFailedSend(t *testing.T) {
	var failed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !failed {
			failed = true
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":"internal","message":"flaky"}}`))
			return
		}
		json.NewEncoder(w).Encode(api.SendResponse{
			ConversationID: "conv_1",
			ResponseID:     "resp_1",
			Message:        model.NewMessage(model.RoleAssistant, "ok"),
		})
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, api.ModeGuest)

	if err := m.SendMessage(context.Background(), "hello?", nil, model.VisibilityPublic); err == nil {
		t.Fatal("expected first send to fail")
	}
	failedID := m.Messages(true)[0].ID

	if err := m.RetrySend(context.Background(), failedID); err != nil {
		t.Fatalf("RetrySend failed: %v", err)
	}
	waitFor(t, func() bool {
		msgs := m.Messages(true)
		return len(msgs) == 2 && msgs[0].Delivery == model.DeliveryConfirmed
	})
}

func TestManager_BusyWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(api.SendResponse{ResponseID: "resp_1"})
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, api.ModeGuest)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.SendMessage(context.Background(), "first", nil, model.VisibilityPublic)
	}()
	waitFor(t, func() bool { return len(m.Messages(true)) == 1 })

	if err := m.SendMessage(context.Background(), "second", nil, model.VisibilityPublic); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	close(release)
	wg.Wait()
}

// =============================================================================
// VISIBILITY TESTS
// =============================================================================

func TestManager_InternalNotesExcludedFromContext(t *testing.T) {
	var mu sync.Mutex
	var requests []api.SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.SendRequest
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		json.NewEncoder(w).Encode(api.SendResponse{
			ConversationID: "conv_1",
			ResponseID:     "resp_" + req.Text,
			Message:        model.NewMessage(model.RoleAssistant, "noted"),
		})
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, api.ModeStaff)

	if err := m.SendMessage(context.Background(), "public question", nil, model.VisibilityPublic); err != nil {
		t.Fatalf("public send failed: %v", err)
	}
	waitFor(t, func() bool { return !m.IsSending() && len(m.Messages(true)) == 2 })

	if err := m.SendMessage(context.Background(), "internal note about guest", nil, model.VisibilityInternal); err != nil {
		t.Fatalf("internal send failed: %v", err)
	}
	waitFor(t, func() bool { return !m.IsSending() && len(m.Messages(true)) == 4 })

	if err := m.SendMessage(context.Background(), "follow-up", nil, model.VisibilityPublic); err != nil {
		t.Fatalf("follow-up send failed: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(requests) == 3
	})

	// The follow-up's context must contain the public exchange but never
	// the internal note.
	mu.Lock()
	ctx := requests[2].Context
	mu.Unlock()
	if len(ctx) == 0 {
		t.Fatal("expected context on follow-up send")
	}
	for _, msg := range ctx {
		if msg.IsInternal() {
			t.Errorf("internal note leaked into context: %q", msg.Content)
		}
	}
	var sawPublic bool
	for _, msg := range ctx {
		if msg.Content == "public question" {
			sawPublic = true
		}
	}
	if !sawPublic {
		t.Error("public message missing from context")
	}
}

func TestManager_GuestCannotSendInternal(t *testing.T) {
	m := newTestManager(t, "http://unused.invalid", api.ModeGuest)

	err := m.SendMessage(context.Background(), "note", nil, model.VisibilityInternal)
	if !errors.Is(err, ErrInternalNotAllowed) {
		t.Errorf("err = %v, want ErrInternalNotAllowed", err)
	}
	if len(m.Messages(true)) != 0 {
		t.Error("rejected send must not be echoed")
	}
}

func TestManager_MessagesFiltersInternal(t *testing.T) {
	m := newTestManager(t, "http://unused.invalid", api.ModeStaff)

	note := model.NewMessage(model.RoleUser, "internal note")
	note.Visibility = model.VisibilityInternal
	m.SetActiveConversation("conv_1", []*model.Message{
		model.NewMessage(model.RoleUser, "hello"),
		note,
	})

	if got := len(m.Messages(false)); got != 1 {
		t.Errorf("filtered messages = %d, want 1", got)
	}
	if got := len(m.Messages(true)); got != 2 {
		t.Errorf("unfiltered messages = %d, want 2", got)
	}
}

// =============================================================================
// ACTION TESTS
// =============================================================================

func seedPendingAction(m *Manager) string {
	msg := model.NewMessage(model.RoleAssistant, "Move reservation #1042 to site B3?")
	msg.Action = &model.ActionRequired{
		ID:   "act_1",
		Kind: model.ActionConfirmation,
		Options: []model.ActionOption{
			{ID: "confirm", Label: "Confirm", Variant: "primary"},
			{ID: "cancel", Label: "Cancel"},
		},
	}
	m.SetActiveConversation("conv_1", []*model.Message{msg})
	return msg.ID
}

func TestManager_ExecuteActionLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/actions/execute" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["actionId"] != "act_1" || body["optionId"] != "confirm" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(api.ActionResult{
			Message: model.NewMessage(model.RoleAssistant, "Reservation moved to B3."),
		})
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, api.ModeStaff)
	msgID := seedPendingAction(m)

	if err := m.ExecuteAction(context.Background(), msgID, "confirm"); err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}

	if id, _ := m.PendingAction(); id != "" {
		t.Error("action should be resolved")
	}
	msgs := m.Messages(true)
	if len(msgs) != 2 || msgs[1].Content != "Reservation moved to B3." {
		t.Errorf("expected result message, got %+v", msgs)
	}
}

func TestManager_ActionSupersededByNewerReply(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:1", api.ModeStaff)

	actionMsg := model.NewMessage(model.RoleAssistant, "Move reservation #1042 to site B3?")
	actionMsg.Action = &model.ActionRequired{
		ID:      "act_1",
		Kind:    model.ActionConfirmation,
		Options: []model.ActionOption{{ID: "confirm", Label: "Confirm"}},
	}
	newer := model.NewMessage(model.RoleAssistant, "Actually, B3 just got booked. B5 is free.")
	m.SetActiveConversation("conv_1", []*model.Message{actionMsg, newer})

	if id, _ := m.PendingAction(); id != "" {
		t.Error("a newer assistant message should supersede the pending action")
	}
}

func TestManager_ExecuteActionFailureStaysPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"conflict","message":"site no longer free"}}`))
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, api.ModeStaff)
	msgID := seedPendingAction(m)

	if err := m.ExecuteAction(context.Background(), msgID, "confirm"); err == nil {
		t.Fatal("expected execution error")
	}

	// Failure is inline and the action stays pending for retry.
	id, action := m.PendingAction()
	if id != msgID || action == nil {
		t.Fatal("action should still be pending")
	}
	if action.Error == "" {
		t.Error("expected inline action error")
	}
}

func TestManager_ExecuteActionNotPending(t *testing.T) {
	m := newTestManager(t, "http://unused.invalid", api.ModeStaff)
	m.SetActiveConversation("conv_1", []*model.Message{
		model.NewMessage(model.RoleAssistant, "no action here"),
	})

	err := m.ExecuteAction(context.Background(), m.Messages(true)[0].ID, "confirm")
	if !errors.Is(err, ErrActionNotPending) {
		t.Errorf("err = %v, want ErrActionNotPending", err)
	}
}

// =============================================================================
// CONVERSATION SWITCHING TESTS
// =============================================================================

func TestManager_SetActiveConversationReplacesTranscript(t *testing.T) {
	m := newTestManager(t, "http://unused.invalid", api.ModeGuest)
	m.SetActiveConversation("conv_1", []*model.Message{
		model.NewMessage(model.RoleUser, "old conversation"),
	})

	loaded := []*model.Message{
		model.NewMessage(model.RoleUser, "question"),
		model.NewMessage(model.RoleAssistant, "answer"),
	}
	m.SetActiveConversation("conv_2", loaded)

	if m.ConversationID() != "conv_2" {
		t.Errorf("ConversationID = %q", m.ConversationID())
	}
	msgs := m.Messages(true)
	if len(msgs) != 2 || msgs[0].Content != "question" {
		t.Errorf("transcript = %+v", msgs)
	}
	if m.IsSending() || m.IsTyping() {
		t.Error("flags should reset on switch")
	}
}

func TestManager_ClearStartsFresh(t *testing.T) {
	m := newTestManager(t, "http://unused.invalid", api.ModeGuest)
	m.SetActiveConversation("conv_1", []*model.Message{
		model.NewMessage(model.RoleUser, "hello"),
	})

	m.Clear()
	if m.ConversationID() != "" {
		t.Error("conversation id should reset")
	}
	if len(m.Messages(true)) != 0 {
		t.Error("transcript should be empty")
	}
}
