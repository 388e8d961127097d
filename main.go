// chatkit - Campreserv reservation chat for the terminal.
//
// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/attachment"
	"github.com/campreserv/chatkit/internal/cli"
	"github.com/campreserv/chatkit/internal/config"
	"github.com/campreserv/chatkit/internal/conversation"
	"github.com/campreserv/chatkit/internal/transport"
	"github.com/campreserv/chatkit/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdWidget:
		runWidget(args)
	case cli.CmdConfig:
		exitOnError(cli.HandleConfig(args))
	case cli.CmdDoctor:
		exitOnError(cli.HandleDoctor(args))
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	}
}

func runWidget(args cli.Args) {
	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatkit: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run `chatkit config init` to create a config file.")
		os.Exit(1)
	}

	// The session id groups sends issued before the backend assigns a
	// conversation id. Fresh per widget mount.
	client := api.NewClient(cfg.Backend.BaseURL, api.Scope{
		CampgroundID:  cfg.Session.CampgroundID,
		Mode:          api.Mode(cfg.Session.Mode),
		ParticipantID: cfg.Session.ParticipantID,
		AuthToken:     cfg.Session.AuthToken,
		SessionID:     uuid.NewString(),
	}).WithMaxRetries(cfg.Backend.MaxRetries)

	driver := transport.New(transport.Kind(cfg.Backend.Transport), client)
	manager := conversation.NewManager(client, driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatkit: start transport: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	tray := attachment.NewTray(client)
	defer tray.Close()

	lipgloss.SetColorProfile(termenv.ColorProfile())

	// Debug logging goes to a file; writing to the terminal would fight
	// the renderer for the screen.
	if os.Getenv("CHATKIT_DEBUG") != "" {
		f, err := tea.LogToFile("chatkit-debug.log", "chatkit")
		if err == nil {
			defer f.Close()
		}
	}

	program := tea.NewProgram(
		chat.New(cfg, client, manager, tray),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatkit: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the file config and layers command-line overrides on
// top, re-validating the result.
func loadConfig(args cli.Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if args.CampgroundID != "" {
		cfg.Session.CampgroundID = args.CampgroundID
	}
	if args.Mode != "" {
		cfg.Session.Mode = args.Mode
	}
	if args.Transport != "" {
		cfg.Backend.Transport = args.Transport
	}
	if args.Message != "" {
		cfg.Session.InitialMessage = args.Message
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatkit: %v\n", err)
		os.Exit(1)
	}
}
