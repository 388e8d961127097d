// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/campreserv/chatkit/internal/history"
	"github.com/campreserv/chatkit/internal/shell"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update routes Bubble Tea messages to the appropriate handler.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case conversationChangedMsg:
		return m.handleConversationChanged()

	case trayChangedMsg:
		// Tray items render in the composer area; nothing to recompute.
		return m, waitForUpdate(m.tray, trayChangedMsg{})

	case listChangedMsg:
		m.clampHistoryCursor()
		return m, waitForUpdate(m.convList, listChangedMsg{})

	case transcriptChangedMsg:
		if m.shell.ActiveView() == shell.ViewTranscript {
			m.refreshTranscriptViewport()
		}
		return m, waitForUpdate(m.transcript, transcriptChangedMsg{})

	case sendFailedMsg:
		return m, m.setStatus("Send failed: "+msg.err.Error(), true)

	case attachResultMsg:
		if msg.err != nil {
			return m, m.setStatus(fmt.Sprintf("Attach %s: %v", msg.name, msg.err), true)
		}
		return m, m.setStatus("Attached "+msg.name, false)

	case actionResultMsg:
		if msg.err != nil {
			return m, m.setStatus(msg.err.Error(), true)
		}
		m.actionCursor = 0
		return m, nil

	case exportResultMsg:
		if msg.err != nil {
			return m, m.setStatus("Export failed: "+msg.err.Error(), true)
		}
		return m, m.setStatus("Exported to "+msg.path, false)

	case feedbackResultMsg:
		if msg.err != nil {
			return m, m.setStatus("Rating failed: "+msg.err.Error(), true)
		}
		return m, m.setStatus("Thanks for the feedback", false)

	case statusExpiredMsg:
		if msg.generation == m.statusGen {
			m.status = ""
			m.statusIsError = false
		}
		return m, nil
	}

	// Cursor blink and other component-internal messages.
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	viewportHeight := msg.Height - reservedHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(m.contentWidth(), viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.contentWidth()
		m.viewport.Height = viewportHeight
	}
	m.textarea.SetWidth(m.contentWidth() - 2)
	m.rebuildRenderer()

	switch m.shell.ActiveView() {
	case shell.ViewTranscript:
		m.refreshTranscriptViewport()
	default:
		m.refreshChatViewport(false)
	}
	return m, nil
}

// contentWidth is the transcript column width, shrunk while the artifact
// panel is open.
func (m Model) contentWidth() int {
	width := m.width
	if _, open := m.shell.ArtifactOpen(); open {
		width -= m.width / artifactPanelDivisor
	}
	if width < 20 {
		width = 20
	}
	return width
}

// rebuildRenderer recreates the Markdown renderer for the current width
// and theme. A nil renderer falls back to plain text.
func (m *Model) rebuildRenderer() {
	if !m.cfg.UI.Markdown {
		m.renderer = nil
		return
	}
	wrap := m.contentWidth() - 4
	if wrap < 20 {
		wrap = 20
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wrap)}
	switch m.cfg.UI.Theme {
	case "light":
		opts = append(opts, glamour.WithStandardStyle("light"))
	case "dark":
		opts = append(opts, glamour.WithStandardStyle("dark"))
	default:
		opts = append(opts, glamour.WithAutoStyle())
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = renderer
}

// =============================================================================
// MANAGER UPDATES
// =============================================================================

func (m Model) handleConversationChanged() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForUpdate(m.manager, conversationChangedMsg{})}

	// Only transcript growth counts as new content; flag-only updates
	// must not bump the unread counter. The previous message count is
	// packed into the high bits of the fingerprint.
	fingerprint := m.transcriptFingerprint()
	grew := fingerprint != m.lastFingerprint
	prevCount := m.lastFingerprint >> 20
	m.lastFingerprint = fingerprint

	autoScroll := false
	if grew {
		autoScroll = m.follow.HandleNewContent(m.firstNewMessageID(prevCount))
	}

	if cmd := m.maybeAutoOpenArtifact(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if cmd := m.runPendingTool(); cmd != nil {
		cmds = append(cmds, cmd)
	}

	if m.shell.ActiveView() == shell.ViewChat {
		m.refreshChatViewport(autoScroll)
	}
	return m, tea.Batch(cmds...)
}

// transcriptFingerprint cheaply detects transcript growth: message count
// plus the size of the newest message's visible content.
func (m Model) transcriptFingerprint() int {
	msgs := m.manager.Messages(m.showInternal)
	if len(msgs) == 0 {
		return 0
	}
	last := msgs[len(msgs)-1]
	return len(msgs)<<20 | len(last.DisplayContent())
}

// firstNewMessageID returns the ID of the earliest message the reader has
// not seen yet: the first message past the previous count, or the newest
// one when growth was a streaming delta into an existing message.
func (m Model) firstNewMessageID(prevCount int) string {
	msgs := m.manager.Messages(m.showInternal)
	if len(msgs) == 0 {
		return ""
	}
	if prevCount < len(msgs) {
		return msgs[prevCount].ID
	}
	return msgs[len(msgs)-1].ID
}

// maybeAutoOpenArtifact opens the artifact panel for a fresh staff-side
// artifact, once per message.
func (m *Model) maybeAutoOpenArtifact() tea.Cmd {
	msgs := m.manager.Messages(m.showInternal)
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		art := msg.Artifact()
		if art == nil {
			continue
		}
		if m.autoOpened[msg.ID] {
			return nil
		}
		m.autoOpened[msg.ID] = true
		if m.policy.ShouldAutoOpen(art.Kind) {
			m.shell.OpenArtifact(*art)
			m.viewport.Width = m.contentWidth()
			m.rebuildRenderer()
			m.refreshChatViewport(false)
		}
		return nil
	}
	return nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global bindings first.
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Back):
		return m.handleBack()

	case key.Matches(msg, m.keys.History):
		if m.shell.ActiveView() == shell.ViewChat && m.historyAvailable() {
			m.shell.OpenHistory()
			m.historyCursor = 0
			m.searchInput = false
			return m, m.refreshListCmd()
		}
		return m, nil
	}

	switch m.shell.ActiveView() {
	case shell.ViewHistory:
		return m.handleHistoryKey(msg)
	case shell.ViewTranscript:
		return m.handleTranscriptKey(msg)
	default:
		return m.handleChatKey(msg)
	}
}

func (m Model) handleBack() (tea.Model, tea.Cmd) {
	if _, open := m.shell.ArtifactOpen(); open {
		m.shell.CloseArtifact()
		m.viewport.Width = m.contentWidth()
		m.rebuildRenderer()
		m.refreshChatViewport(false)
		return m, nil
	}
	if m.searchInput {
		m.searchInput = false
		return m, nil
	}
	if m.shell.Back() && m.shell.ActiveView() == shell.ViewChat {
		m.refreshChatViewport(true)
	}
	return m, nil
}

// -----------------------------------------------------------------------------
// Chat view
// -----------------------------------------------------------------------------

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// A pending action owns option navigation, but the composer stays
	// usable: Enter resolves the highlighted option only when the draft
	// is empty, otherwise it sends the text as usual.
	if _, action := m.manager.PendingAction(); action != nil {
		switch {
		case key.Matches(msg, m.keys.NextOption), msg.String() == "right":
			if n := len(action.Options); n > 0 {
				m.actionCursor = (m.actionCursor + 1) % n
			}
			return m, nil
		case msg.String() == "left":
			if n := len(action.Options); n > 0 {
				m.actionCursor = (m.actionCursor + n - 1) % n
			}
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			if strings.TrimSpace(m.textarea.Value()) == "" {
				return m, m.executeSelectedAction()
			}
		}
	}

	switch {
	case key.Matches(msg, m.keys.Submit):
		return m, m.submit()

	case key.Matches(msg, m.keys.Internal):
		if m.staffMode() {
			m.composer.ToggleInternalNote()
		}
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		if failed := lastFailedMessage(m.manager.Messages(m.showInternal)); failed != nil {
			manager := m.manager
			messageID := failed.ID
			return m, func() tea.Msg {
				if err := manager.RetrySend(context.Background(), messageID); err != nil {
					return sendFailedMsg{err: err}
				}
				return nil
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Regenerate):
		if last := lastAssistantMessage(m.manager.Messages(m.showInternal)); last != nil {
			manager := m.manager
			messageID := last.ID
			return m, func() tea.Msg {
				if err := manager.Regenerate(context.Background(), messageID); err != nil {
					return sendFailedMsg{err: err}
				}
				return nil
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Artifact):
		return m.toggleArtifact()

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down),
		key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow.HandleScroll(m.distanceFromBottom())
		return m, cmd

	case key.Matches(msg, m.keys.End):
		m.follow.JumpToLatest()
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.composer.SetText(m.textarea.Value())
	return m, cmd
}

func (m Model) toggleArtifact() (tea.Model, tea.Cmd) {
	if _, open := m.shell.ArtifactOpen(); open {
		m.shell.CloseArtifact()
	} else {
		msgs := m.manager.Messages(m.showInternal)
		for i := len(msgs) - 1; i >= 0; i-- {
			if art := msgs[i].Artifact(); art != nil {
				m.shell.OpenArtifact(*art)
				break
			}
		}
	}
	m.viewport.Width = m.contentWidth()
	m.rebuildRenderer()
	m.refreshChatViewport(false)
	return m, nil
}

// -----------------------------------------------------------------------------
// History view
// -----------------------------------------------------------------------------

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchInput {
		switch msg.Type {
		case tea.KeyEnter:
			m.searchInput = false
			query := m.queryDraft
			list := m.convList
			m.historyCursor = 0
			return m, func() tea.Msg {
				list.SetQuery(context.Background(), query)
				return nil
			}
		case tea.KeyBackspace:
			if len(m.queryDraft) > 0 {
				runes := []rune(m.queryDraft)
				m.queryDraft = string(runes[:len(runes)-1])
			}
			return m, nil
		case tea.KeyRunes:
			m.queryDraft += string(msg.Runes)
			return m, nil
		case tea.KeySpace:
			m.queryDraft += " "
			return m, nil
		}
		return m, nil
	}

	items := m.convList.Items()
	switch {
	case msg.String() == "/":
		m.searchInput = true
		m.queryDraft = m.convList.Query()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.historyCursor > 0 {
			m.historyCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.historyCursor < len(items)-1 {
			m.historyCursor++
			return m, nil
		}
		// Scrolling past the last row pulls the next page.
		if m.convList.HasMore() && !m.convList.IsLoading() {
			list := m.convList
			return m, func() tea.Msg {
				list.LoadMore(context.Background())
				return nil
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Window):
		return m, m.cycleWindow()

	case key.Matches(msg, m.keys.Submit):
		if m.historyCursor < len(items) {
			id := items[m.historyCursor].ID
			m.shell.OpenTranscript()
			m.refreshTranscriptViewport()
			return m, m.openTranscriptCmd(id)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) cycleWindow() tea.Cmd {
	current := m.convList.ActiveWindow()
	next := history.Windows[0]
	for i, w := range history.Windows {
		if w == current {
			next = history.Windows[(i+1)%len(history.Windows)]
			break
		}
	}
	m.historyCursor = 0
	list := m.convList
	return func() tea.Msg {
		list.SetWindow(context.Background(), next)
		return nil
	}
}

func (m *Model) clampHistoryCursor() {
	if n := len(m.convList.Items()); m.historyCursor >= n && n > 0 {
		m.historyCursor = n - 1
	} else if n == 0 {
		m.historyCursor = 0
	}
}

// -----------------------------------------------------------------------------
// Transcript view
// -----------------------------------------------------------------------------

func (m Model) handleTranscriptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Resume):
		if m.transcript.Loaded() {
			m.manager.SetActiveConversation(m.transcript.ConversationID(), m.transcript.Messages())
			m.shell.ResumeChat()
			m.follow.JumpToLatest()
			m.autoOpened = make(map[string]bool)
			m.lastFingerprint = m.transcriptFingerprint()
			m.refreshChatViewport(true)
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		if m.viewport.AtTop() && m.transcript.HasOlder() && !m.transcript.IsLoading() {
			transcript := m.transcript
			return m, func() tea.Msg {
				transcript.LoadOlder(context.Background())
				return nil
			}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}
