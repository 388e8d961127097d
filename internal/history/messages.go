// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"sync"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
)

// =============================================================================
// MESSAGE HISTORY
// =============================================================================

// MessageHistory loads a past conversation's transcript newest-page first,
// with older pages prepended on demand as the reader scrolls up.
type MessageHistory struct {
	client *api.Client

	mu             sync.Mutex
	conversationID string
	msgs           []*model.Message
	nextCursor     string
	loading        bool
	loaded         bool
	errMsg         string

	// generation counts Load calls. A fetch tagged with an older
	// generation is stale and its result is dropped, even when the reader
	// reopened the same conversation.
	generation uint64

	updates chan struct{}
}

// NewMessageHistory creates a transcript loader over the backend client.
func NewMessageHistory(client *api.Client) *MessageHistory {
	return &MessageHistory{
		updates: make(chan struct{}, 1),
		client:  client,
	}
}

// Updates returns the change signal channel.
func (h *MessageHistory) Updates() <-chan struct{} {
	return h.updates
}

func (h *MessageHistory) notify() {
	select {
	case h.updates <- struct{}{}:
	default:
	}
}

// Load fetches the newest page of the given conversation, replacing any
// previously loaded transcript.
func (h *MessageHistory) Load(ctx context.Context, conversationID string) {
	h.mu.Lock()
	h.generation++
	gen := h.generation
	h.conversationID = conversationID
	h.msgs = nil
	h.nextCursor = ""
	h.loading = true
	h.loaded = false
	h.errMsg = ""
	h.mu.Unlock()
	h.notify()

	go func() {
		page, err := h.client.ListMessages(ctx, conversationID, "")

		h.mu.Lock()
		defer h.mu.Unlock()
		if gen != h.generation {
			// Reader opened another conversation meanwhile, possibly the
			// same one again.
			return
		}
		h.loading = false
		if err != nil {
			h.errMsg = err.Error()
		} else {
			h.loaded = true
			h.msgs = page.Items
			h.nextCursor = page.NextCursor
		}
		h.notify()
	}()
}

// LoadOlder prepends the next older page.
func (h *MessageHistory) LoadOlder(ctx context.Context) {
	h.mu.Lock()
	if h.loading || h.nextCursor == "" {
		h.mu.Unlock()
		return
	}
	gen := h.generation
	conversationID := h.conversationID
	cursor := h.nextCursor
	h.loading = true
	h.mu.Unlock()
	h.notify()

	go func() {
		page, err := h.client.ListMessages(ctx, conversationID, cursor)

		h.mu.Lock()
		defer h.mu.Unlock()
		if gen != h.generation {
			return
		}
		h.loading = false
		if err != nil {
			h.errMsg = err.Error()
		} else {
			h.msgs = append(page.Items, h.msgs...)
			h.nextCursor = page.NextCursor
		}
		h.notify()
	}()
}

// Messages returns a snapshot of the loaded transcript in chronological
// order.
func (h *MessageHistory) Messages() []*model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*model.Message(nil), h.msgs...)
}

// ConversationID returns the conversation being read.
func (h *MessageHistory) ConversationID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conversationID
}

// IsLoading reports whether a page load is in flight.
func (h *MessageHistory) IsLoading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loading
}

// Loaded reports whether the newest page has arrived.
func (h *MessageHistory) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// HasOlder reports whether an older page is available.
func (h *MessageHistory) HasOlder() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextCursor != ""
}

// Error returns the last load failure, empty when the last load succeeded.
func (h *MessageHistory) Error() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errMsg
}
