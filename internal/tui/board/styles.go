package board

import (
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/width"
)

// Color palette, using numbered 256-color codes.
var (
	colorOpen       = lipgloss.Color("244") // gray
	colorInProgress = lipgloss.Color("39")  // blue
	colorBlocked    = lipgloss.Color("214") // orange
	colorClosed     = lipgloss.Color("76")  // green
	colorSelected   = lipgloss.Color("39")
	colorMuted      = lipgloss.Color("242")
	colorWhite      = lipgloss.Color("15")
	colorPaused     = lipgloss.Color("196")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMuted)

	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("236")).
				Foreground(colorWhite).
				Bold(true)

	normalRowStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorPaused)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	pausedBannerStyle = lipgloss.NewStyle().
				Foreground(colorPaused).
				Bold(true)
)

// statusColor returns the foreground color for a bead's tracker status.
func statusColor(s string) lipgloss.Color {
	switch s {
	case "open":
		return colorOpen
	case "in_progress":
		return colorInProgress
	case "blocked":
		return colorBlocked
	case "closed":
		return colorClosed
	default:
		return colorMuted
	}
}

// displayWidth measures a string's terminal column width, counting East
// Asian wide and fullwidth runes as two columns rather than one so bead
// titles containing CJK text don't throw off column alignment.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// padRight pads s with spaces to at least n display columns wide. Strings
// already at or beyond n are truncated to n, preserving alignment in a
// fixed-width column instead of wrapping the table.
func padRight(s string, n int) string {
	w := displayWidth(s)
	if w >= n {
		cut := []rune(s)
		total := 0
		for i, r := range cut {
			cw := 1
			if kind := width.LookupRune(r).Kind(); kind == width.EastAsianWide || kind == width.EastAsianFullwidth {
				cw = 2
			}
			if total+cw > n {
				return string(cut[:i])
			}
			total += cw
		}
		return s
	}
	return s + spaces(n-w)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
