// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/attachment"
	"github.com/campreserv/chatkit/internal/config"
	"github.com/campreserv/chatkit/internal/conversation"
	"github.com/campreserv/chatkit/internal/history"
	"github.com/campreserv/chatkit/internal/model"
	"github.com/campreserv/chatkit/internal/shell"
)

// =============================================================================
// LAYOUT CONSTANTS
// =============================================================================

const (
	// reservedHeight is the vertical space held back from the viewport:
	// header (1), tray row (1), composer (3), status bar (1), padding (1).
	reservedHeight = 7

	// composerHeight is the visible line count of the input area.
	composerHeight = 3

	// artifactPanelWidth is the share of the terminal the artifact panel
	// takes when open, as a fraction denominator (1/2).
	artifactPanelDivisor = 2

	// statusDisplayTime is how long transient status lines stay visible.
	statusDisplayTime = 4 * time.Second
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat widget. It owns no domain
// state; it routes input to the managers and renders their snapshots.
type Model struct {
	cfg    *config.Config
	client *api.Client

	manager    *conversation.Manager
	tray       *attachment.Tray
	convList   *history.ConversationList
	transcript *history.MessageHistory

	shell    *shell.Shell
	follow   *shell.Follow
	composer *shell.Composer
	policy   shell.ArtifactPolicy

	keys     KeyMap
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	// showInternal controls whether staff internal notes render in the
	// transcript. Always false in guest mode.
	showInternal bool

	// historyCursor is the selected row in the conversation browser.
	historyCursor int

	// searchInput is true while keystrokes in the history view edit the
	// query instead of navigating rows.
	searchInput bool

	// queryDraft is the in-progress search text, applied on Enter.
	queryDraft string

	// lastFingerprint detects transcript growth between manager updates
	// so flag-only changes do not count as unread content.
	lastFingerprint int

	// actionCursor is the highlighted option on the pending action.
	actionCursor int

	// autoOpened tracks message IDs whose artifact already auto-opened,
	// so a re-render never re-opens a panel the user closed.
	autoOpened map[string]bool

	status        string
	statusIsError bool
	statusGen     int
}

// New constructs the widget model around already-started managers.
func New(cfg *config.Config, client *api.Client, manager *conversation.Manager, tray *attachment.Tray) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about sites, availability, or your reservation..."
	ta.CharLimit = 4000
	ta.SetHeight(composerHeight)
	ta.ShowLineNumbers = false
	ta.Focus()
	// Plain Enter sends; these insert a line break instead. shift+enter
	// only arrives on terminals with extended key reporting, so alt+enter
	// and ctrl+j cover the rest.
	ta.KeyMap.InsertNewline.SetKeys("shift+enter", "alt+enter", "ctrl+j")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = spinnerStyle

	mode := api.Mode(cfg.Session.Mode)

	return Model{
		cfg:        cfg,
		client:     client,
		manager:    manager,
		tray:       tray,
		convList:   history.NewConversationList(client),
		transcript: history.NewMessageHistory(client),
		shell:      shell.NewShell(),
		follow:     &shell.Follow{},
		composer:   &shell.Composer{},
		policy: shell.ArtifactPolicy{
			Mode:          mode,
			AutoOpenStaff: cfg.UI.ArtifactAutoOpenStaff,
		},
		keys:         DefaultKeyMap(),
		textarea:     ta,
		spinner:      sp,
		showInternal: mode == api.ModeStaff,
		autoOpened:   make(map[string]bool),
	}
}

// Init arms the update bridges and, when configured, fires the greeting.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		m.spinner.Tick,
		waitForUpdate(m.manager, conversationChangedMsg{}),
		waitForUpdate(m.tray, trayChangedMsg{}),
		waitForUpdate(m.convList, listChangedMsg{}),
		waitForUpdate(m.transcript, transcriptChangedMsg{}),
	}
	if initial := m.cfg.Session.InitialMessage; initial != "" {
		manager := m.manager
		cmds = append(cmds, func() tea.Msg {
			if err := manager.SendMessage(context.Background(), initial, nil, visibilityFor(false)); err != nil {
				return sendFailedMsg{err: err}
			}
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// DERIVED STATE
// =============================================================================

// sendGate snapshots every condition that blocks the composer.
func (m Model) sendGate() shell.SendGate {
	return shell.SendGate{
		Sending:             m.manager.IsSending(),
		Uploading:           m.tray.HasUploading(),
		UploadError:         m.tray.HasError(),
		HasReadyAttachments: len(m.tray.Ready()) > 0,
		Disconnected:        !m.manager.IsConnected(),
	}
}

func (m Model) staffMode() bool {
	return api.Mode(m.cfg.Session.Mode) == api.ModeStaff
}

// historyAvailable reports whether the session may browse past
// conversations. Anonymous guest sessions degrade by hiding the
// affordance rather than erroring.
func (m Model) historyAvailable() bool {
	return m.client.Scope().AuthToken != ""
}

// distanceFromBottom is the follow-state scroll metric: how many lines of
// transcript sit below the visible window.
func (m Model) distanceFromBottom() int {
	return m.viewport.TotalLineCount() - (m.viewport.YOffset + m.viewport.Height)
}

// setStatus replaces the status line and schedules its expiry.
func (m *Model) setStatus(text string, isError bool) tea.Cmd {
	m.status = text
	m.statusIsError = isError
	m.statusGen++
	gen := m.statusGen
	return tea.Tick(statusDisplayTime, func(time.Time) tea.Msg {
		return statusExpiredMsg{generation: gen}
	})
}

func visibilityFor(internal bool) model.Visibility {
	if internal {
		return model.VisibilityInternal
	}
	return model.VisibilityPublic
}
