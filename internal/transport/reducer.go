// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
)

// =============================================================================
// FRAGMENT REDUCER
// =============================================================================

// ApplyResult reports what one fragment did to the message list.
type ApplyResult struct {
	// Created is true when the fragment started a new assistant message.
	// The first fragment of a response also confirms the pending user
	// message that triggered it.
	Created bool

	// Done is true when the fragment terminated its response.
	Done bool

	// ConversationID is the backend-assigned conversation id carried on the
	// fragment, when present. The manager adopts it on the first send of a
	// fresh session.
	ConversationID string
}

// Reducer folds stream fragments into a message list. All three drivers
// deliver fragments through the same reduction so their behavior cannot
// drift. Not safe for concurrent use; the conversation manager is the
// single writer.
type Reducer struct {
	// finalized remembers response ids that already received a terminal
	// fragment. Duplicate terminals (socket redelivery after reconnect)
	// must not reopen or duplicate a message.
	finalized map[string]bool
}

// NewReducer creates an empty reducer.
func NewReducer() *Reducer {
	return &Reducer{finalized: make(map[string]bool)}
}

// Apply folds one fragment into msgs and returns the updated list. Fragments
// for finalized response ids are dropped. Malformed fragments (no usable
// payload) are dropped without error; a broken fragment must never take the
// whole response down.
func (r *Reducer) Apply(msgs []*model.Message, e api.StreamEvent) ([]*model.Message, ApplyResult) {
	result := ApplyResult{ConversationID: e.ConversationID}

	if e.ResponseID != "" && r.finalized[e.ResponseID] {
		return msgs, result
	}

	switch e.Type {
	case api.EventDelta:
		target, created := r.target(&msgs, e.ResponseID)
		if target == nil {
			return msgs, result
		}
		target.AppendDelta(e.Content)
		result.Created = created

	case api.EventToolCall:
		if e.ToolCall == nil {
			return msgs, result
		}
		target, created := r.target(&msgs, e.ResponseID)
		if target == nil {
			return msgs, result
		}
		target.ToolCalls = append(target.ToolCalls, *e.ToolCall)
		result.Created = created

	case api.EventToolResult:
		if e.ToolResult == nil {
			return msgs, result
		}
		target, created := r.target(&msgs, e.ResponseID)
		if target == nil {
			return msgs, result
		}
		target.ToolResults = append(target.ToolResults, *e.ToolResult)
		result.Created = created

	case api.EventAction:
		if e.Action == nil {
			return msgs, result
		}
		target, created := r.target(&msgs, e.ResponseID)
		if target == nil {
			return msgs, result
		}
		target.Action = e.Action
		result.Created = created

	case api.EventMessage:
		// Complete message in one fragment (request/response driver, or a
		// backend that chose not to stream). Replaces any open stream for
		// the same response id.
		if e.Message == nil {
			return msgs, result
		}
		if existing := findOpen(msgs, e.ResponseID); existing != nil {
			*existing = *e.Message
			existing.ResponseID = e.ResponseID
			existing.FinalizeStream()
		} else {
			m := e.Message
			m.ResponseID = e.ResponseID
			msgs = append(msgs, m)
			result.Created = true
		}

	case api.EventDone:
		if target := findOpen(msgs, e.ResponseID); target != nil {
			target.FinalizeStream()
			if e.MessageID != "" {
				target.ID = e.MessageID
			}
		}
		if e.ResponseID != "" {
			r.finalized[e.ResponseID] = true
		}
		result.Done = true
	}

	return msgs, result
}

// Invalidate drops all in-flight responses. Called on conversation switch
// so fragments that arrive late for the previous conversation cannot leak
// into the new one.
func (r *Reducer) Invalidate(msgs []*model.Message) {
	for _, m := range msgs {
		if m.ResponseID != "" && m.IsStreaming {
			m.FinalizeStream()
			r.finalized[m.ResponseID] = true
		}
	}
}

// Finalized reports whether the response id already terminated.
func (r *Reducer) Finalized(responseID string) bool {
	return r.finalized[responseID]
}

// target returns the open assistant message for responseID, creating one
// when the fragment is the first of its response. Returns nil for fragments
// with no response id.
func (r *Reducer) target(msgs *[]*model.Message, responseID string) (*model.Message, bool) {
	if responseID == "" {
		return nil, false
	}
	if existing := findOpen(*msgs, responseID); existing != nil {
		return existing, false
	}
	m := model.NewAssistantMessage(responseID)
	*msgs = append(*msgs, m)
	return m, true
}

// findOpen scans from the tail for the in-flight assistant message bound to
// responseID. The tail scan keeps reduction cheap for long transcripts.
func findOpen(msgs []*model.Message, responseID string) *model.Message {
	if responseID == "" {
		return nil
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ResponseID == responseID && msgs[i].Role == model.RoleAssistant {
			return msgs[i]
		}
	}
	return nil
}
