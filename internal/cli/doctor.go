// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campreserv/chatkit/internal/api"
)

// HandleDoctor implements `chatkit doctor`: load the config, ping the
// backend, and report what the widget would see on startup.
func HandleDoctor(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Printf("Config OK (campground %s, %s mode)\n", cfg.Session.CampgroundID, cfg.Session.Mode)
	fmt.Printf("Backend: %s via %s\n", cfg.Backend.BaseURL, cfg.Backend.Transport)

	client := api.NewClient(cfg.Backend.BaseURL, api.Scope{
		CampgroundID:  cfg.Session.CampgroundID,
		Mode:          api.Mode(cfg.Session.Mode),
		ParticipantID: cfg.Session.ParticipantID,
		AuthToken:     cfg.Session.AuthToken,
		SessionID:     uuid.NewString(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	status, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	fmt.Printf("Backend reachable in %s (status %q", time.Since(start).Round(time.Millisecond), status.Status)
	if status.Version != "" {
		fmt.Printf(", version %s", status.Version)
	}
	fmt.Println(")")

	if client.CanUpload() {
		fmt.Println("Uploads: available")
	} else {
		fmt.Println("Uploads: unavailable (anonymous guest session)")
	}
	return nil
}
