// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
)

// =============================================================================
// VIEW MACHINE
// =============================================================================

// View is the widget's top-level screen.
type View string

const (
	// ViewChat is the live conversation.
	ViewChat View = "chat"

	// ViewHistory is the conversation browser.
	ViewHistory View = "history"

	// ViewTranscript is a read-only past conversation opened from history.
	ViewTranscript View = "transcript"
)

// Shell is the top-level view machine plus the artifact side panel state.
type Shell struct {
	view View

	// artifactOpen tracks the structured-result side panel.
	artifactOpen bool
	artifact     model.Artifact
}

// NewShell starts on the live chat view.
func NewShell() *Shell {
	return &Shell{view: ViewChat}
}

// ActiveView returns the current screen.
func (s *Shell) ActiveView() View {
	return s.view
}

// OpenHistory switches to the conversation browser.
func (s *Shell) OpenHistory() {
	s.view = ViewHistory
}

// OpenTranscript switches to a read-only past conversation. Only reachable
// from the history browser.
func (s *Shell) OpenTranscript() {
	if s.view == ViewHistory {
		s.view = ViewTranscript
	}
}

// Back returns one level: transcript goes back to history, history back to
// chat. Returns false when already on the chat view.
func (s *Shell) Back() bool {
	switch s.view {
	case ViewTranscript:
		s.view = ViewHistory
		return true
	case ViewHistory:
		s.view = ViewChat
		return true
	default:
		return false
	}
}

// ResumeChat jumps straight to the live view, used after resuming a past
// conversation into the active session.
func (s *Shell) ResumeChat() {
	s.view = ViewChat
}

// =============================================================================
// ARTIFACT PANEL
// =============================================================================

// OpenArtifact shows the structured-result panel.
func (s *Shell) OpenArtifact(a model.Artifact) {
	s.artifact = a
	s.artifactOpen = true
}

// CloseArtifact hides the panel.
func (s *Shell) CloseArtifact() {
	s.artifactOpen = false
}

// ArtifactOpen reports whether the panel is showing, and what.
func (s *Shell) ArtifactOpen() (model.Artifact, bool) {
	return s.artifact, s.artifactOpen
}

// ArtifactPolicy decides whether a freshly classified artifact opens the
// panel without being clicked.
type ArtifactPolicy struct {
	Mode api.Mode

	// AutoOpenStaff enables auto-open in staff mode. Guests always click
	// through; auto-opening panels over a guest's booking flow is hostile.
	AutoOpenStaff bool
}

// ShouldAutoOpen reports whether the artifact opens automatically.
func (p ArtifactPolicy) ShouldAutoOpen(kind model.ArtifactKind) bool {
	if kind == model.ArtifactNone {
		return false
	}
	return p.Mode == api.ModeStaff && p.AutoOpenStaff
}
