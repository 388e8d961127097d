// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
	"github.com/campreserv/chatkit/internal/util"
)

// =============================================================================
// SEND PATH
// =============================================================================

// submit validates the composer against the gate and dispatches either a
// slash command or a message send. It returns the command to run and
// whether the composer should be cleared.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.textarea.Value())
	m.composer.SetText(m.textarea.Value())

	if strings.HasPrefix(text, "/") {
		cmd := m.runSlashCommand(text)
		m.textarea.Reset()
		m.composer.Reset()
		return cmd
	}

	gate := m.sendGate()
	if !m.composer.CanSend(gate) {
		if reason := m.composer.BlockedReason(gate); reason != "" {
			return m.setStatus(reason, true)
		}
		return nil
	}

	attachments := m.tray.Ready()
	internal := m.composer.IsInternalNote()
	m.textarea.Reset()
	m.composer.Reset()
	m.tray.Clear()
	m.follow.JumpToLatest()

	manager := m.manager
	return func() tea.Msg {
		if err := manager.SendMessage(context.Background(), text, attachments, visibilityFor(internal)); err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// runSlashCommand executes a composer command. Unknown commands surface a
// status line rather than going to the backend as message text.
func (m *Model) runSlashCommand(input string) tea.Cmd {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/attach":
		if !m.client.CanUpload() {
			return nil
		}
		if arg == "" {
			return m.setStatus("usage: /attach <path>", true)
		}
		return m.attachCmd(arg)

	case "/clear":
		m.manager.Clear()
		m.tray.Clear()
		m.follow.JumpToLatest()
		m.autoOpened = make(map[string]bool)
		return m.setStatus("Conversation cleared", false)

	case "/export":
		return m.exportCmd(arg)

	case "/rate":
		return m.rateCmd(arg)

	case "/internal":
		if !m.staffMode() {
			return m.setStatus("Internal notes are staff-only", true)
		}
		m.composer.ToggleInternalNote()
		return nil

	case "/history":
		if !m.historyAvailable() {
			return nil
		}
		m.shell.OpenHistory()
		return m.refreshListCmd()

	default:
		return m.setStatus(fmt.Sprintf("Unknown command %q", cmd), true)
	}
}

func (m *Model) attachCmd(path string) tea.Cmd {
	tray := m.tray
	return func() tea.Msg {
		item, err := tray.Add(context.Background(), expandPath(path))
		if err != nil {
			if item != nil {
				// Validation failures are staged as tray error rows;
				// the row is the surface, not the status bar.
				return nil
			}
			return attachResultMsg{name: filepath.Base(path), err: err}
		}
		return attachResultMsg{name: item.Name}
	}
}

func (m *Model) exportCmd(path string) tea.Cmd {
	conversationID := m.manager.ConversationID()
	if conversationID == "" {
		conversationID = "draft"
	}
	msgs := m.manager.Messages(m.showInternal)
	if len(msgs) == 0 {
		return m.setStatus("Nothing to export", true)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		name := fmt.Sprintf("chat-%s-%s.md", conversationID, time.Now().Format("20060102-150405"))
		path = filepath.Join(home, name)
	} else {
		path = expandPath(path)
	}

	return func() tea.Msg {
		content := model.ExportMarkdown(conversationID, msgs)
		if err := util.AtomicWriteFile(path, []byte(content), 0600); err != nil {
			return exportResultMsg{err: err}
		}
		return exportResultMsg{path: path}
	}
}

func (m *Model) rateCmd(arg string) tea.Cmd {
	var rating api.Rating
	switch arg {
	case "up":
		rating = api.RatingUp
	case "down":
		rating = api.RatingDown
	default:
		return m.setStatus("usage: /rate up|down", true)
	}

	target := lastAssistantMessage(m.manager.Messages(m.showInternal))
	if target == nil {
		return m.setStatus("No reply to rate yet", true)
	}

	manager := m.manager
	messageID := target.ID
	return func() tea.Msg {
		return feedbackResultMsg{err: manager.SubmitFeedback(context.Background(), messageID, rating)}
	}
}

// =============================================================================
// ACTION AND TOOL EXECUTION
// =============================================================================

// executeSelectedAction resolves the highlighted option on the pending
// action, if any.
func (m *Model) executeSelectedAction() tea.Cmd {
	messageID, action := m.manager.PendingAction()
	if action == nil || len(action.Options) == 0 {
		return nil
	}
	if m.actionCursor >= len(action.Options) {
		m.actionCursor = 0
	}
	optionID := action.Options[m.actionCursor].ID

	manager := m.manager
	return func() tea.Msg {
		return actionResultMsg{err: manager.ExecuteAction(context.Background(), messageID, optionID)}
	}
}

// runPendingTool executes the first client-side tool call that has no
// result yet. Called after each conversation change; at most one tool
// runs at a time.
func (m *Model) runPendingTool() tea.Cmd {
	if m.manager.IsExecutingTool() {
		return nil
	}
	msgs := m.manager.Messages(true)
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Role != model.RoleAssistant || msg.IsStreaming {
			continue
		}
		for _, call := range msg.ToolCalls {
			if msg.ResultForCall(call.ID) != nil {
				continue
			}
			manager := m.manager
			messageID := msg.ID
			c := call
			return func() tea.Msg {
				if err := manager.ExecuteTool(context.Background(), messageID, c); err != nil {
					return actionResultMsg{err: err}
				}
				return nil
			}
		}
	}
	return nil
}

// =============================================================================
// HISTORY COMMANDS
// =============================================================================

func (m *Model) refreshListCmd() tea.Cmd {
	list := m.convList
	return func() tea.Msg {
		list.Refresh(context.Background())
		return nil
	}
}

func (m *Model) openTranscriptCmd(conversationID string) tea.Cmd {
	transcript := m.transcript
	return func() tea.Msg {
		transcript.Load(context.Background(), conversationID)
		return nil
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func lastAssistantMessage(msgs []*model.Message) *model.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && !msgs[i].IsStreaming {
			return msgs[i]
		}
	}
	return nil
}

func lastFailedMessage(msgs []*model.Message) *model.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Delivery == model.DeliveryFailed {
			return msgs[i]
		}
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
