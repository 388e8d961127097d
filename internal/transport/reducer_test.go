// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"encoding/json"
	"testing"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
)

// =============================================================================
// REDUCER TESTS
// =============================================================================

func TestReducer_StreamLifecycle(t *testing.T) {
	r := NewReducer()
	var msgs []*model.Message

	msgs, res := r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_1", Content: "Two sites "})
	if !res.Created {
		t.Error("first delta should create the assistant message")
	}
	msgs, res = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_1", Content: "are open."})
	if res.Created {
		t.Error("second delta should reuse the open message")
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if got := msgs[0].DisplayContent(); got != "Two sites are open." {
		t.Errorf("DisplayContent = %q", got)
	}
	if !msgs[0].IsStreaming {
		t.Error("message should still be streaming")
	}

	msgs, res = r.Apply(msgs, api.StreamEvent{Type: api.EventDone, ResponseID: "resp_1", ConversationID: "conv_1"})
	if !res.Done {
		t.Error("terminal fragment should report Done")
	}
	if res.ConversationID != "conv_1" {
		t.Errorf("ConversationID = %q", res.ConversationID)
	}
	if msgs[0].IsStreaming {
		t.Error("message should be finalized")
	}
	if msgs[0].Content != "Two sites are open." {
		t.Errorf("Content = %q", msgs[0].Content)
	}
}

func TestReducer_DuplicateTerminal(t *testing.T) {
	// Fragments followed by a duplicate terminal (socket redelivery after
	// reconnect) must not create a second assistant message or duplicate
	// content.
	r := NewReducer()
	var msgs []*model.Message

	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_1", Content: "hello"})
	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventDone, ResponseID: "resp_1"})

	msgs, res := r.Apply(msgs, api.StreamEvent{Type: api.EventDone, ResponseID: "resp_1"})
	if res.Done || res.Created {
		t.Error("duplicate terminal must be a no-op")
	}

	// A late delta for a finalized response is dropped too.
	msgs, res = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_1", Content: "hello"})
	if res.Created {
		t.Error("late delta must not reopen the response")
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Content != "hello" {
		t.Errorf("Content = %q, want no duplication", msgs[0].Content)
	}
}

func TestReducer_InterleavedResponses(t *testing.T) {
	r := NewReducer()
	var msgs []*model.Message

	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_a", Content: "A"})
	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_b", Content: "B"})
	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_a", Content: "A"})

	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if got := msgs[0].DisplayContent(); got != "AA" {
		t.Errorf("first response = %q", got)
	}
	if got := msgs[1].DisplayContent(); got != "B" {
		t.Errorf("second response = %q", got)
	}
}

func TestReducer_ToolCallAndResult(t *testing.T) {
	r := NewReducer()
	var msgs []*model.Message

	call := &model.ToolCall{ID: "call_1", Name: "check_availability", Args: json.RawMessage(`{"from":"2026-07-04"}`)}
	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventToolCall, ResponseID: "resp_1", ToolCall: call})
	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventToolResult, ResponseID: "resp_1", ToolResult: &model.ToolResult{
		CallID:  "call_1",
		Payload: json.RawMessage(`{"availableSites":[]}`),
	}})

	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Name != "check_availability" {
		t.Errorf("tool calls = %+v", msgs[0].ToolCalls)
	}
	if got := msgs[0].ResultForCall("call_1"); got == nil {
		t.Error("expected matched tool result")
	}
}

func TestReducer_ActionRequired(t *testing.T) {
	r := NewReducer()
	var msgs []*model.Message

	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventAction, ResponseID: "resp_1", Action: &model.ActionRequired{
		ID:   "act_1",
		Kind: model.ActionConfirmation,
	}})

	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].PendingAction() == nil {
		t.Error("expected pending action")
	}
}

func TestReducer_MessageReplacesOpenStream(t *testing.T) {
	r := NewReducer()
	var msgs []*model.Message

	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_1", Content: "partial"})
	full := model.NewMessage(model.RoleAssistant, "complete reply")
	msgs, res := r.Apply(msgs, api.StreamEvent{Type: api.EventMessage, ResponseID: "resp_1", Message: full})

	if res.Created {
		t.Error("full message should replace the open stream, not append")
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Content != "complete reply" {
		t.Errorf("Content = %q", msgs[0].Content)
	}
}

func TestReducer_MalformedFragmentsDropped(t *testing.T) {
	r := NewReducer()
	var msgs []*model.Message

	// Fragments with no usable payload or no response id are dropped.
	msgs, res := r.Apply(msgs, api.StreamEvent{Type: api.EventToolCall, ResponseID: "resp_1"})
	if res.Created || len(msgs) != 0 {
		t.Error("tool_call with no payload should be dropped")
	}
	msgs, res = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, Content: "orphan"})
	if res.Created || len(msgs) != 0 {
		t.Error("delta with no response id should be dropped")
	}
}

func TestReducer_Invalidate(t *testing.T) {
	r := NewReducer()
	var msgs []*model.Message

	msgs, _ = r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_1", Content: "in flight"})
	r.Invalidate(msgs)

	if msgs[0].IsStreaming {
		t.Error("invalidate should finalize open streams")
	}
	if !r.Finalized("resp_1") {
		t.Error("invalidated response should be finalized")
	}

	// Late fragments for the invalidated response are dropped.
	msgs, res := r.Apply(msgs, api.StreamEvent{Type: api.EventDelta, ResponseID: "resp_1", Content: " more"})
	if res.Created {
		t.Error("late fragment must not reopen the response")
	}
	if msgs[0].Content != "in flight" {
		t.Errorf("Content = %q", msgs[0].Content)
	}
}
