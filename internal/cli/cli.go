// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - argument parsing and command routing for the chatkit binary.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdWidget Command = iota // default: launch the chat widget
	CmdConfig
	CmdDoctor
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath   string // --config <path>
	CampgroundID string // --campground <id>
	Mode         string // --mode guest|staff
	Transport    string // --transport http|sse|socket
	Message      string // --message "text" sent on launch

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `chatkit - Campreserv reservation chat for the terminal

Chatkit connects guests and campground staff to the Campreserv
assistant: availability, quotes, bookings, and reservation help.

Usage:
  chatkit                      Start the chat widget (default)
  chatkit config [show|set|init|path]   Configuration
  chatkit doctor               Check backend connectivity
  chatkit version, -v          Show version
  chatkit help, -h             Show this help

Global flags:
  --config <path>       Use an alternate config file
  --campground <id>     Campground scope (overrides config)
  --mode <guest|staff>  Session mode (overrides config)
  --transport <kind>    http, sse, or socket (overrides config)
  --message <text>      Send a message immediately on launch

Configuration lives at ~/.campreserv/chatkit.toml. Environment
variables prefixed CHATKIT_ override file values.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("chatkit version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

func parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdWidget, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining

	switch cmd {
	case "widget", "run":
		return CmdWidget, args

	case "config":
		parseConfigArgs(&args, remaining)
		return CmdConfig, args

	case "doctor":
		return CmdDoctor, args

	case "version", "-v", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}

// parseGlobalFlags extracts flags valid for every command and returns the
// remaining positional arguments.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	var remaining []string

	takeValue := func(i *int, name string) string {
		if *i+1 < len(argv) {
			*i++
			return argv[*i]
		}
		fmt.Fprintf(os.Stderr, "%s requires a value\n", name)
		return ""
	}

	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "--config":
			args.ConfigPath = takeValue(&i, "--config")
		case "--campground":
			args.CampgroundID = takeValue(&i, "--campground")
		case "--mode":
			args.Mode = takeValue(&i, "--mode")
		case "--transport":
			args.Transport = takeValue(&i, "--transport")
		case "--message", "-m":
			args.Message = takeValue(&i, "--message")
		default:
			remaining = append(remaining, argv[i])
		}
	}
	return remaining, args
}

func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) == 0 {
		args.Subcommand = "show"
		return
	}
	args.Subcommand = strings.ToLower(remaining[0])
	if args.Subcommand == "set" {
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = remaining[2]
		}
	}
}
