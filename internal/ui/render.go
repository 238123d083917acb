package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func homeDir() (string, error) {
	return os.UserHomeDir()
}

var (
	okColor    = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	warnColor  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failColor  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// render picks emoji when emoji output is enabled and plain otherwise,
// then applies style only when color is enabled.
func render(style lipgloss.Style, emoji, plain string) string {
	symbol := plain
	if ShouldUseEmoji() {
		symbol = emoji
	}
	if ShouldUseColor() {
		return style.Render(symbol)
	}
	return symbol
}

// OkIcon renders the success status icon, matching the ✓ internal/logging
// uses for Logger.Ok, with color and emoji gated by terminal capability.
func OkIcon() string {
	return render(okColor, "✓", "OK")
}

// WarnIcon renders the warning status icon, matching internal/logging's
// Logger.Warn prefix.
func WarnIcon() string {
	return render(warnColor, "⚠", "WARN")
}

// FailIcon renders the failure status icon, matching internal/logging's
// Logger.Error prefix.
func FailIcon() string {
	return render(failColor, "✗", "FAIL")
}

// Muted renders s dimmed, for secondary detail lines under a command's
// main status line.
func Muted(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return mutedStyle.Render(s)
}

// ShortenPath abbreviates a path under the user's home directory with a
// leading "~", for status output that would otherwise be dominated by a
// long absolute prefix.
func ShortenPath(path string) string {
	home, err := homeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel := strings.TrimPrefix(path, home+string(filepath.Separator)); rel != path {
		return "~" + string(filepath.Separator) + rel
	}
	return path
}

// RelativeTime renders t relative to now in the coarse units a status
// line needs ("3m ago", "2h ago"), not a precise duration.
func RelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh ago", d.Hours())
	default:
		return fmt.Sprintf("%.1fd ago", d.Hours()/24)
	}
}
