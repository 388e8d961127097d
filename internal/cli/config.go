// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/campreserv/chatkit/internal/config"
)

// HandleConfig implements `chatkit config [show|set|init|path]`.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args)
	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "init":
		return configInit(args)
	case "set":
		return configSet(args)
	default:
		return fmt.Errorf("unknown config subcommand %q (want show, set, init, or path)", args.Subcommand)
	}
}

func configShow(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fmt.Println("Backend:")
	fmt.Printf("  base_url    = %s\n", cfg.Backend.BaseURL)
	fmt.Printf("  transport   = %s\n", cfg.Backend.Transport)
	fmt.Printf("  max_retries = %d\n", cfg.Backend.MaxRetries)
	fmt.Println("Session:")
	fmt.Printf("  campground_id = %s\n", cfg.Session.CampgroundID)
	fmt.Printf("  mode          = %s\n", cfg.Session.Mode)
	fmt.Printf("  participant   = %s\n", cfg.Session.ParticipantID)
	// SECURITY: never print the token itself.
	fmt.Printf("  auth_token    = %s\n", redact(cfg.Session.AuthToken))
	fmt.Println("UI:")
	fmt.Printf("  theme    = %s\n", cfg.UI.Theme)
	fmt.Printf("  markdown = %t\n", cfg.UI.Markdown)
	return nil
}

func configInit(args Args) error {
	path := args.ConfigPath
	if path == "" {
		var err error
		path, err = config.ConfigPathTOML()
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	cfg := config.Default()
	if args.CampgroundID != "" {
		cfg.Session.CampgroundID = args.CampgroundID
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	if cfg.Session.CampgroundID == "" {
		fmt.Println("Set session.campground_id before starting the widget.")
	}
	return nil
}

func configSet(args Args) error {
	if args.ConfigKey == "" {
		return fmt.Errorf("usage: chatkit config set <key> <value>")
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	switch args.ConfigKey {
	case "backend.base_url":
		cfg.Backend.BaseURL = args.ConfigVal
	case "backend.transport":
		cfg.Backend.Transport = args.ConfigVal
	case "backend.max_retries":
		n, err := strconv.Atoi(args.ConfigVal)
		if err != nil {
			return fmt.Errorf("backend.max_retries must be a number: %w", err)
		}
		cfg.Backend.MaxRetries = n
	case "session.campground_id":
		cfg.Session.CampgroundID = args.ConfigVal
	case "session.mode":
		cfg.Session.Mode = args.ConfigVal
	case "session.participant_id":
		cfg.Session.ParticipantID = args.ConfigVal
	case "session.auth_token":
		cfg.Session.AuthToken = args.ConfigVal
	case "ui.theme":
		cfg.UI.Theme = args.ConfigVal
	case "ui.markdown":
		cfg.UI.Markdown = args.ConfigVal == "true"
	default:
		return fmt.Errorf("unknown config key %q", args.ConfigKey)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := args.ConfigPath
	if path == "" {
		if path, err = config.ConfigPathTOML(); err != nil {
			return err
		}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	fmt.Printf("Set %s\n", args.ConfigKey)
	return nil
}

func loadConfig(args Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		return config.LoadFromPath(args.ConfigPath)
	}
	return config.Load()
}

func redact(token string) string {
	if token == "" {
		return "(unset)"
	}
	return "(set)"
}
