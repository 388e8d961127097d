// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import "strings"

// =============================================================================
// COMPOSER GATING
// =============================================================================

// SendGate is the snapshot of session state that decides whether the
// composer may dispatch. The UI assembles it from the manager and tray on
// every keystroke.
type SendGate struct {
	// Sending is true while a send awaits the backend.
	Sending bool

	// Uploading is true while any staged attachment is still uploading.
	// A message must never leave with half-uploaded attachments.
	Uploading bool

	// UploadError is true when a staged attachment failed; the user must
	// remove or retry it first.
	UploadError bool

	// HasReadyAttachments is true when at least one attachment finished
	// uploading; it permits an attachment-only send.
	HasReadyAttachments bool

	// Disconnected is true while the transport has no connection.
	Disconnected bool
}

// Composer holds the draft text and its send decision.
type Composer struct {
	text string

	// internalNote is the staff-mode toggle marking the draft as a
	// staff-only note.
	internalNote bool
}

// SetText replaces the draft.
func (c *Composer) SetText(text string) {
	c.text = text
}

// Text returns the raw draft.
func (c *Composer) Text() string {
	return c.text
}

// TrimmedText returns the draft with surrounding whitespace removed; this
// is what gets sent.
func (c *Composer) TrimmedText() string {
	return strings.TrimSpace(c.text)
}

// ToggleInternalNote flips the staff-only note marker.
func (c *Composer) ToggleInternalNote() {
	c.internalNote = !c.internalNote
}

// IsInternalNote reports whether the draft is marked staff-only.
func (c *Composer) IsInternalNote() bool {
	return c.internalNote
}

// Reset clears the draft after a successful send. The internal-note toggle
// resets too; notes are opt-in per message.
func (c *Composer) Reset() {
	c.text = ""
	c.internalNote = false
}

// CanSend decides whether the draft may be dispatched under the given
// gate. Whitespace-only drafts without attachments never send.
// A pending action never blocks here: the user may keep talking while
// the action's options stay independently selectable.
func (c *Composer) CanSend(gate SendGate) bool {
	if gate.Sending || gate.Uploading || gate.UploadError || gate.Disconnected {
		return false
	}
	return c.TrimmedText() != "" || gate.HasReadyAttachments
}

// BlockedReason names why the composer cannot send, for the status line.
// Empty when sending is possible or the draft is simply empty.
func (c *Composer) BlockedReason(gate SendGate) string {
	switch {
	case gate.Disconnected:
		return "reconnecting..."
	case gate.Uploading:
		return "waiting for attachments to finish uploading"
	case gate.UploadError:
		return "an attachment failed; remove or retry it"
	case gate.Sending:
		return "sending..."
	default:
		return ""
	}
}
