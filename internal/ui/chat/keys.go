// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines the keyboard bindings for the widget. Bindings are
// view-sensitive: Submit sends in the chat view, opens a conversation in
// the history view, and resolves the selected option while an action is
// pending.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	End        key.Binding
	Submit     key.Binding
	NewLine    key.Binding
	Back       key.Binding
	History    key.Binding
	Internal   key.Binding
	Retry      key.Binding
	Regenerate key.Binding
	NextOption key.Binding
	Artifact   key.Binding
	Resume     key.Binding
	Window     key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("up", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("down", "scroll down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "page down"),
		),
		End: key.NewBinding(
			key.WithKeys("end"),
			key.WithHelp("End", "jump to latest"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		NewLine: key.NewBinding(
			key.WithKeys("shift+enter", "alt+enter", "ctrl+j"),
			key.WithHelp("Shift+Enter", "new line"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "back"),
		),
		History: key.NewBinding(
			key.WithKeys("ctrl+h"),
			key.WithHelp("C-h", "history"),
		),
		Internal: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "internal note"),
		),
		Retry: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "retry failed send"),
		),
		Regenerate: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("C-g", "regenerate reply"),
		),
		NextOption: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "next option"),
		),
		Artifact: key.NewBinding(
			key.WithKeys("ctrl+a"),
			key.WithHelp("C-a", "open/close artifact"),
		),
		Resume: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resume conversation"),
		),
		Window: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("C-w", "cycle date window"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}
