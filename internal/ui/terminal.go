// Package ui answers the small set of terminal-capability questions
// the CLI and board TUI need before deciding how to render: color
// (overridable via NO_COLOR/CLICOLOR/CLICOLOR_FORCE), emoji
// (DEBUSSY_NO_EMOJI), JSON output (DEBUSSY_JSON), and TTY-ness.
package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether stdout is connected to a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor decides whether ANSI color codes should be used.
// Respects NO_COLOR (https://no-color.org/), CLICOLOR, and
// CLICOLOR_FORCE conventions.
func ShouldUseColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji decides whether emoji status decorations should be
// used. Disabled outside a TTY to keep output greppable.
func ShouldUseEmoji() bool {
	if _, exists := os.LookupEnv("DEBUSSY_NO_EMOJI"); exists {
		return false
	}
	return IsTerminal()
}

// IsJSONMode reports whether the CLI was asked for machine-readable
// output via the DEBUSSY_JSON env var, for non-interactive callers
// (watchdogs, CI) that can't pass flags through a wrapper script.
func IsJSONMode() bool {
	return os.Getenv("DEBUSSY_JSON") == "1"
}
