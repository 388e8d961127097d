// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION SUMMARY
// =============================================================================

// ConversationSummary is the list form of a conversation used by the
// history browser. Full message lists are fetched separately per page.
type ConversationSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	Preview       string    `json:"preview,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// DisplayTitle returns the title, falling back to the preview and then a
// placeholder for untitled conversations.
func (c ConversationSummary) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	if c.Preview != "" {
		return c.Preview
	}
	return "New conversation"
}

// =============================================================================
// TRANSCRIPT EXPORT
// =============================================================================

// ExportMarkdown renders a message list as a Markdown transcript with role
// labels, timestamps, and attachment links.
func ExportMarkdown(conversationID string, messages []*Message) string {
	var sb strings.Builder
	sb.WriteString("# Conversation " + conversationID + "\n\n")

	for _, msg := range messages {
		label := "**" + msg.Role.DisplayName() + "**"
		if msg.IsInternal() {
			label += " _(internal)_"
		}
		sb.WriteString(label + " (" + msg.CreatedAt.Format("15:04") + "):\n\n")
		sb.WriteString(msg.DisplayContent())
		sb.WriteString("\n")
		for _, att := range msg.Attachments {
			sb.WriteString("\n[" + att.Name + "](" + att.URL + ")\n")
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}
