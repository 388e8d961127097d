// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/campreserv/chatkit/internal/attachment"
	"github.com/campreserv/chatkit/internal/model"
	"github.com/campreserv/chatkit/internal/shell"
	"github.com/campreserv/chatkit/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the active view.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	switch m.shell.ActiveView() {
	case shell.ViewHistory:
		return m.viewHistory()
	case shell.ViewTranscript:
		return m.viewTranscript()
	default:
		return m.viewChat()
	}
}

// -----------------------------------------------------------------------------
// Chat view
// -----------------------------------------------------------------------------

func (m Model) viewChat() string {
	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
	}
	if tray := m.renderTray(); tray != "" {
		sections = append(sections, tray)
	} else {
		sections = append(sections, "")
	}
	if bar := m.renderActionBar(); bar != "" {
		sections = append(sections, bar)
	}
	sections = append(sections, m.renderComposer(), m.renderStatusBar())

	left := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if panel := m.renderArtifactPanel(); panel != "" {
		return lipgloss.JoinHorizontal(lipgloss.Top, left, panel)
	}
	return left
}

func (m Model) renderHeader() string {
	title := headerStyle.Render("Campreserv Chat")
	scope := headerDimStyle.Render(fmt.Sprintf(" %s · %s", m.cfg.Session.CampgroundID, m.cfg.Session.Mode))
	conn := headerDimStyle.Render(" · connected")
	if !m.manager.IsConnected() {
		conn = errorStyle.Render(" · offline")
	}
	return title + scope + conn
}

func (m Model) renderTray() string {
	items := m.tray.Items()
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		label := fmt.Sprintf("%s (%s)", util.TruncateRunes(item.Name, 24), util.HumanSize(item.Size))
		switch item.State {
		case attachment.StateUploading:
			parts = append(parts, trayItemStyle.Render(m.spinner.View()+" "+label))
		case attachment.StateError:
			parts = append(parts, trayErrorStyle.Render("x "+label+": "+item.Err))
		default:
			parts = append(parts, trayItemStyle.Render("+ "+label))
		}
	}
	return strings.Join(parts, "  ")
}

// renderActionBar renders the pending action's prompt and options.
func (m Model) renderActionBar() string {
	_, action := m.manager.PendingAction()
	if action == nil {
		return ""
	}

	title := action.Title
	if title == "" {
		title = "Confirmation required"
	}
	line := actionTitleStyle.Render(title)
	if action.Summary != "" {
		line += " " + statusStyle.Render(action.Summary)
	}

	opts := make([]string, 0, len(action.Options))
	for i, opt := range action.Options {
		style := actionOptionStyle
		if i == m.actionCursor {
			style = actionSelectedStyle
			if opt.Variant == "danger" {
				style = actionDangerStyle
			}
		}
		opts = append(opts, style.Render(opt.Label))
	}
	bar := line + "\n" + strings.Join(opts, " ") + helpStyle.Render("  Tab to choose · Enter on an empty composer to confirm")
	if action.Error != "" {
		bar += "\n" + errorStyle.Render("Failed: "+action.Error+" (Enter to retry)")
	}
	return bar
}

func (m Model) renderComposer() string {
	style := composerStyle
	prefix := ""
	if m.composer.IsInternalNote() {
		style = composerInternalStyle
		prefix = internalBadgeStyle.Render("INTERNAL NOTE") + "\n"
	}
	return prefix + style.Width(m.contentWidth()-2).Render(m.textarea.View())
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.status != "":
		if m.statusIsError {
			left = errorStyle.Render(m.status)
		} else {
			left = statusStyle.Render(m.status)
		}
	case m.manager.IsExecutingTool():
		left = statusStyle.Render(m.spinner.View() + " Looking that up...")
	case m.manager.IsTyping():
		left = statusStyle.Render(m.spinner.View() + " Assistant is replying...")
	case m.manager.IsSending():
		left = statusStyle.Render(m.spinner.View() + " Sending...")
	default:
		// History is hidden, not advertised, for anonymous sessions.
		if m.historyAvailable() {
			left = helpStyle.Render("Enter send · Alt+Enter newline · C-h history · C-c quit")
		} else {
			left = helpStyle.Render("Enter send · Alt+Enter newline · C-c quit")
		}
	}

	if m.follow.Detached() {
		pill := ""
		if n := m.follow.Unread(); n > 0 {
			pill = unreadPillStyle.Render(fmt.Sprintf("%d new", n)) + " "
		}
		left += "  " + pill + helpStyle.Render("End: jump to latest")
	}
	return left
}

// -----------------------------------------------------------------------------
// Artifact panel
// -----------------------------------------------------------------------------

var artifactTitles = map[model.ArtifactKind]string{
	model.ArtifactAvailability: "Availability",
	model.ArtifactQuote:        "Quote",
	model.ArtifactOccupancy:    "Occupancy",
	model.ArtifactRevenue:      "Revenue",
	model.ArtifactRender:       "Details",
}

func (m Model) renderArtifactPanel() string {
	art, open := m.shell.ArtifactOpen()
	if !open {
		return ""
	}
	width := m.width / artifactPanelDivisor
	if width < 24 {
		width = 24
	}

	title := artifactTitles[art.Kind]
	if title == "" {
		title = "Artifact"
	}

	var body bytes.Buffer
	if err := json.Indent(&body, art.Payload, "", "  "); err != nil {
		body.Reset()
		body.Write(art.Payload)
	}

	content := artifactTitleStyle.Render(title) + "\n\n" + body.String() +
		"\n\n" + helpStyle.Render("Esc to close")
	return artifactPanelStyle.
		Width(width - 2).
		MaxHeight(m.height).
		Render(content)
}

// -----------------------------------------------------------------------------
// History view
// -----------------------------------------------------------------------------

func (m Model) viewHistory() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Conversations"))
	b.WriteString(headerDimStyle.Render(" · " + m.convList.ActiveWindow().Label()))
	b.WriteString("\n")

	if m.searchInput {
		b.WriteString(searchActiveStyle.Render("Search: "+m.queryDraft+"_") + "\n\n")
	} else if q := m.convList.Query(); q != "" {
		b.WriteString(statusStyle.Render("Search: "+q) + "\n\n")
	} else {
		b.WriteString(helpStyle.Render("/ search · C-w window · Enter open · Esc back") + "\n\n")
	}

	items := m.convList.Items()
	switch {
	case m.convList.Error() != "":
		b.WriteString(errorStyle.Render("Could not load conversations: " + m.convList.Error()))
	case m.convList.IsLoading() && len(items) == 0:
		b.WriteString(statusStyle.Render(m.spinner.View() + " Loading..."))
	case len(items) == 0:
		b.WriteString(statusStyle.Render("No conversations in this window."))
	default:
		now := time.Now()
		visible := m.height - 6
		if visible < 1 {
			visible = 1
		}
		start := 0
		if m.historyCursor >= visible {
			start = m.historyCursor - visible + 1
		}
		for i := start; i < len(items) && i < start+visible; i++ {
			b.WriteString(m.renderHistoryRow(items[i], i == m.historyCursor, now))
			b.WriteString("\n")
		}
		if m.convList.HasMore() {
			b.WriteString(helpStyle.Render("  ...more (Down to load)"))
		}
	}
	return b.String()
}

func (m Model) renderHistoryRow(item model.ConversationSummary, selected bool, now time.Time) string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	when := shell.RelativeTime(item.LastMessageAt, now)
	title := util.TruncateWidth(item.DisplayTitle(), width-util.StringWidth(when)-3)
	row := util.PadRight(title, width-util.StringWidth(when)-1) + historyMetaStyle.Render(when)
	if selected {
		return historySelectedStyle.Render("> " + row)
	}
	return historyRowStyle.Render("  " + row)
}

// -----------------------------------------------------------------------------
// Transcript view
// -----------------------------------------------------------------------------

func (m Model) viewTranscript() string {
	header := headerStyle.Render("Transcript")
	if id := m.transcript.ConversationID(); id != "" {
		header += headerDimStyle.Render(" · " + id)
	}

	var footer string
	switch {
	case m.transcript.Error() != "":
		footer = errorStyle.Render(m.transcript.Error())
	case m.transcript.IsLoading():
		footer = statusStyle.Render(m.spinner.View() + " Loading...")
	case m.transcript.HasOlder():
		footer = helpStyle.Render("PgUp older · r resume · Esc back")
	default:
		footer = helpStyle.Render("r resume · Esc back")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// refreshChatViewport re-renders the live transcript into the viewport.
func (m *Model) refreshChatViewport(autoScroll bool) {
	msgs := m.manager.Messages(m.showInternal)
	m.viewport.SetContent(m.renderMessages(msgs, true))
	if autoScroll || !m.follow.Detached() {
		m.viewport.GotoBottom()
	}
}

// refreshTranscriptViewport re-renders the loaded past conversation.
func (m *Model) refreshTranscriptViewport() {
	m.viewport.SetContent(m.renderMessages(m.transcript.Messages(), false))
}

func (m Model) renderMessages(msgs []*model.Message, live bool) string {
	if len(msgs) == 0 {
		if live {
			return statusStyle.Render("\n  Ask about site availability, rates, or your stay.")
		}
		return ""
	}
	now := time.Now()
	firstUnseen := ""
	if live {
		firstUnseen = m.follow.FirstUnseen()
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		if firstUnseen != "" && msg.ID == firstUnseen {
			b.WriteString(m.renderUnseenDivider() + "\n")
		}
		b.WriteString(m.renderMessage(msg, live, now))
		b.WriteString("\n")
	}
	return b.String()
}

// renderUnseenDivider draws the "new messages" rule above the first
// message that arrived while the reader was scrolled up.
func (m Model) renderUnseenDivider() string {
	label := " new messages "
	width := m.contentWidth() - 2
	rule := width - util.StringWidth(label)
	if rule < 2 {
		rule = 2
	}
	left := strings.Repeat("─", rule/2)
	right := strings.Repeat("─", rule-rule/2)
	return unseenDividerStyle.Render(left + label + right)
}

func (m Model) renderMessage(msg *model.Message, live bool, now time.Time) string {
	var b strings.Builder

	b.WriteString(m.renderLabel(msg))
	if when := shell.RelativeTime(msg.CreatedAt, now); when != "" {
		b.WriteString(" " + timestampStyle.Render(when))
	}
	if msg.IsInternal() {
		b.WriteString(" " + internalBadgeStyle.Render("INTERNAL"))
	}
	b.WriteString("\n")

	content := msg.DisplayContent()
	if msg.IsStreaming {
		content += "▌"
	}
	if content != "" {
		b.WriteString(m.renderContent(msg, content))
	}

	for _, call := range msg.ToolCalls {
		b.WriteString(m.renderToolCall(msg, call))
	}
	for _, att := range msg.Attachments {
		b.WriteString(attachmentStyle.Render(fmt.Sprintf("+ %s (%s)", att.Name, util.HumanSize(att.Size))) + "\n")
	}
	if msg.Action != nil && msg.Action.Resolved {
		b.WriteString(statusStyle.Render("Action resolved.") + "\n")
	}

	if live {
		switch msg.Delivery {
		case model.DeliveryPending:
			b.WriteString(pendingStyle.Render("sending...") + "\n")
		case model.DeliveryFailed:
			reason := msg.SendError
			if reason == "" {
				reason = "not delivered"
			}
			b.WriteString(errorStyle.Render("x "+reason+" · C-r to retry") + "\n")
		}
	}
	return b.String()
}

func (m Model) renderLabel(msg *model.Message) string {
	switch msg.Role {
	case model.RoleAssistant:
		return assistantLabelStyle.Render("Campreserv")
	case model.RoleUser:
		if m.staffMode() {
			return staffLabelStyle.Render("You (staff)")
		}
		return guestLabelStyle.Render("You")
	default:
		return headerDimStyle.Render(msg.Role.DisplayName())
	}
}

// renderContent renders assistant replies as Markdown when a renderer is
// available; user text and fallback paths render as wrapped plain text.
func (m Model) renderContent(msg *model.Message, content string) string {
	if msg.Role == model.RoleAssistant && !msg.IsStreaming && m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			return strings.TrimRight(rendered, "\n") + "\n"
		}
	}
	wrapped := lipgloss.NewStyle().Width(m.contentWidth() - 2).Render(content)
	return wrapped + "\n"
}

func (m Model) renderToolCall(msg *model.Message, call model.ToolCall) string {
	result := msg.ResultForCall(call.ID)
	switch {
	case result == nil:
		return toolCallStyle.Render(m.spinner.View()+" "+toolLabel(call.Name)) + "\n"
	case result.IsError:
		return errorStyle.Render("x "+toolLabel(call.Name)+" failed") + "\n"
	default:
		line := toolCallStyle.Render("* " + toolLabel(call.Name))
		if kind := model.ClassifyResult(*result); kind != model.ArtifactNone {
			line += helpStyle.Render("  C-a to view")
		}
		return line + "\n"
	}
}

var toolLabels = map[string]string{
	"check_availability": "Checking availability",
	"build_quote":        "Building a quote",
	"occupancy_report":   "Pulling occupancy",
	"revenue_report":     "Pulling revenue",
}

func toolLabel(name string) string {
	if label, ok := toolLabels[name]; ok {
		return label
	}
	return "Running " + name
}
