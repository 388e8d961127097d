// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// VISIBILITY TYPE
// =============================================================================

// Visibility controls whether a message is shared with the counterparty
// and the assistant context, or restricted to staff.
type Visibility string

const (
	// VisibilityPublic messages are visible to the guest and are part of
	// the assistant-facing context.
	VisibilityPublic Visibility = "public"

	// VisibilityInternal messages are staff-only notes. They must never be
	// included in assistant context payloads or shown to the guest.
	VisibilityInternal Visibility = "internal"
)

// =============================================================================
// DELIVERY STATE
// =============================================================================

// DeliveryState tracks the lifecycle of an optimistically rendered outgoing
// message. A user message is Pending from the moment it is echoed locally
// until the backend acknowledges it.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// =============================================================================
// TOOL CALLS AND RESULTS
// =============================================================================

// ToolCall is an assistant-proposed tool invocation.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResult is the resolved output of a tool call, matched by CallID.
type ToolResult struct {
	CallID  string          `json:"callId"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	IsError bool            `json:"isError,omitempty"`
}

// =============================================================================
// ACTION REQUIRED
// =============================================================================

// ActionKind is the flavor of approval an action-required message asks for.
type ActionKind string

const (
	ActionConfirmation ActionKind = "confirmation"
	ActionForm         ActionKind = "form"
	ActionSelection    ActionKind = "selection"
)

// ActionOption is a single selectable choice on an action-required message.
type ActionOption struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Variant string `json:"variant,omitempty"` // e.g. "primary", "danger"
}

// ActionRequired marks a message as blocking on explicit user approval
// before a side-effecting operation proceeds.
type ActionRequired struct {
	ID          string          `json:"id"`
	Kind        ActionKind      `json:"kind"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Options     []ActionOption  `json:"options,omitempty"`

	// Resolved is set locally once the user has executed an option.
	Resolved bool `json:"resolved,omitempty"`

	// Error holds the last execution failure, surfaced inline so the user
	// can retry the same action.
	Error string `json:"-"`
}

// =============================================================================
// ATTACHMENT DESCRIPTOR
// =============================================================================

// Attachment is a server-confirmed file descriptor attached to a message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	StorageKey  string `json:"storageKey"`
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`

	// Content
	Content string `json:"content"`
	Parts   []Part `json:"parts,omitempty"`

	// Structured payloads
	ToolCalls   []ToolCall      `json:"toolCalls,omitempty"`
	ToolResults []ToolResult    `json:"toolResults,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Action      *ActionRequired `json:"actionRequired,omitempty"`

	// Visibility and delivery
	Visibility Visibility    `json:"visibility,omitempty"`
	Delivery   DeliveryState `json:"-"`

	// SendError holds a human-readable failure when Delivery is
	// DeliveryFailed, rendered inline next to the message.
	SendError string `json:"-"`

	// ResponseID correlates streamed fragments to this message while it is
	// in flight. Empty for user messages and fully delivered messages.
	ResponseID string `json:"-"`

	// Streaming state (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:         generateID(),
		Role:       role,
		Content:    content,
		Visibility: VisibilityPublic,
		CreatedAt:  time.Now(),
	}
}

// NewUserMessage creates a new user message in the pending delivery state.
func NewUserMessage(content string) *Message {
	msg := NewMessage(RoleUser, content)
	msg.Delivery = DeliveryPending
	return msg
}

// NewAssistantMessage creates an in-flight assistant message bound to a
// response id. Streamed fragments for that id are appended to it.
func NewAssistantMessage(responseID string) *Message {
	return &Message{
		ID:          generateID(),
		Role:        RoleAssistant,
		Visibility:  VisibilityPublic,
		CreatedAt:   time.Now(),
		ResponseID:  responseID,
		IsStreaming: true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendDelta appends a streamed content fragment to an in-flight message.
func (m *Message) AppendDelta(delta string) {
	if m.IsStreaming {
		m.streamContent.WriteString(delta)
	}
}

// FinalizeStream completes streaming, merging buffered content into Content.
// Calling it on an already finalized message is a no-op.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content += m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
}

// DisplayContent returns the content to render (streamed or final).
func (m *Message) DisplayContent() string {
	if m.IsStreaming {
		return m.Content + m.streamContent.String()
	}
	return m.Content
}

// Preview returns a truncated single-line preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.DisplayContent(), "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content and no parts.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0 &&
		len(m.Parts) == 0 && len(m.ToolCalls) == 0 && len(m.ToolResults) == 0
}

// IsInternal reports whether the message is a staff-only note.
func (m *Message) IsInternal() bool {
	return m.Visibility == VisibilityInternal
}

// PendingAction returns the unresolved action on this message, or nil.
func (m *Message) PendingAction() *ActionRequired {
	if m.Action != nil && !m.Action.Resolved {
		return m.Action
	}
	return nil
}

// ResultForCall returns the tool result matching the given call id, or nil.
func (m *Message) ResultForCall(callID string) *ToolResult {
	for i := range m.ToolResults {
		if m.ToolResults[i].CallID == callID {
			return &m.ToolResults[i]
		}
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
