// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("36"))

	headerDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	guestLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("36"))

	staffLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	internalBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("214")).
				Padding(0, 1)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("36"))

	unreadPillStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("39")).
			Padding(0, 1).
			Bold(true)

	unseenDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	composerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	composerInternalStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("214"))

	trayItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	trayErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	actionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("214"))

	actionOptionStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(lipgloss.Color("245"))

	actionSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("36")).
				Bold(true)

	actionDangerStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("196")).
				Bold(true)

	toolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99"))

	attachmentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	artifactPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("36")).
				Padding(0, 1)

	artifactTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("36"))

	historySelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("36"))

	historyRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	historyMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	searchActiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("36")).
				Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)
