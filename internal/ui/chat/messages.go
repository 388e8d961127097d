// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// UPDATE SIGNALS
// =============================================================================
//
// The state managers coalesce their change notifications into buffered
// channels. Each signal type below bridges one channel into the Bubble Tea
// loop; the handler that consumes it re-issues the wait command so the
// bridge stays armed for the life of the program.

// conversationChangedMsg signals that the conversation manager's
// transcript or flags changed.
type conversationChangedMsg struct{}

// trayChangedMsg signals that the attachment tray's items changed.
type trayChangedMsg struct{}

// listChangedMsg signals that the conversation browser's results changed.
type listChangedMsg struct{}

// transcriptChangedMsg signals that a past conversation's message page
// arrived or changed.
type transcriptChangedMsg struct{}

// =============================================================================
// OPERATION RESULTS
// =============================================================================

// sendFailedMsg reports a send that was rejected before it reached the
// wire (gate violations surface synchronously, not through the manager).
type sendFailedMsg struct {
	err error
}

// attachResultMsg reports the outcome of staging a file on the tray.
type attachResultMsg struct {
	name string
	err  error
}

// actionResultMsg reports the outcome of executing a pending action
// option. Failures also land on the message itself; this only drives the
// status line.
type actionResultMsg struct {
	err error
}

// exportResultMsg reports the outcome of a transcript export.
type exportResultMsg struct {
	path string
	err  error
}

// feedbackResultMsg reports the outcome of a rating submission.
type feedbackResultMsg struct {
	err error
}

// statusExpiredMsg clears a transient status line after its display
// window. The generation guard ignores expiry of superseded messages.
type statusExpiredMsg struct {
	generation int
}

// =============================================================================
// WAIT COMMANDS
// =============================================================================

type updateSource interface {
	Updates() <-chan struct{}
}

// waitForUpdate blocks on one manager's update channel and converts the
// wake-up into the given message. A closed channel ends the bridge.
func waitForUpdate(src updateSource, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-src.Updates(); !ok {
			return nil
		}
		return msg
	}
}
