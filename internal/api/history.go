// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/campreserv/chatkit/internal/model"
)

// =============================================================================
// CONVERSATION LIST
// =============================================================================

// ListRequest filters the conversation list. Cursor is opaque; an empty
// cursor fetches the first page.
type ListRequest struct {
	Query  string
	Since  time.Time // zero value means no time filter
	Cursor string
}

// ConversationPage is one page of conversation summaries.
type ConversationPage struct {
	Items      []model.ConversationSummary `json:"items"`
	NextCursor string                      `json:"nextCursor,omitempty"`
}

// ListConversations fetches one page of the campground's conversation
// history, filtered by query and time window.
func (c *Client) ListConversations(ctx context.Context, req ListRequest) (*ConversationPage, error) {
	q := url.Values{}
	q.Set("campgroundId", c.scope.CampgroundID)
	if req.Query != "" {
		q.Set("query", req.Query)
	}
	if !req.Since.IsZero() {
		q.Set("since", req.Since.UTC().Format(time.RFC3339))
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}

	var out ConversationPage
	path := "/api/v1/conversations?" + q.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// MESSAGE HISTORY
// =============================================================================

// MessagePage is one page of a conversation's messages, oldest first.
type MessagePage struct {
	Items      []*model.Message `json:"items"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListMessages fetches one page of messages for a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID, cursor string) (*MessagePage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out MessagePage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
