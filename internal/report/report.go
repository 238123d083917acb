// Package report renders a metrics.Report as a markdown summary,
// backing the `debussy metrics` command.
// Supplements original_source/src/debussy/metrics.py's cmd_metrics,
// which builds the same sections (per-bead trail, stage averages,
// issue counts) as plain print statements; here the sections are
// assembled as markdown and handed to charmbracelet/glamour so they
// render with the same terminal styling as the rest of the command
// line, per SPEC_FULL.md's ambient stack.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/tsturo/debussy/internal/metrics"
)

// Markdown builds the raw markdown document for a metrics.Report,
// before any terminal rendering is applied.
func Markdown(r metrics.Report) string {
	var b strings.Builder

	b.WriteString("# Pipeline Metrics\n\n")

	if len(r.BeadTrails) == 0 {
		b.WriteString("No pipeline events recorded yet.\n")
		return b.String()
	}

	b.WriteString("## Per-bead\n\n")
	for _, t := range r.BeadTrails {
		fmt.Fprintf(&b, "- **%s** %s _(%s)_\n", t.Bead, t.Trail, metrics.FormatDuration(t.Total))
	}
	b.WriteString("\n")

	if len(r.StageAverages) > 0 {
		b.WriteString("## Stage averages\n\n")
		b.WriteString("| Stage | Average | Passes |\n|---|---|---|\n")
		for _, a := range r.StageAverages {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", a.Stage, metrics.FormatDuration(a.Average), a.Count)
		}
		b.WriteString("\n")
	}

	if r.Rejections > 0 || r.Timeouts > 0 {
		fmt.Fprintf(&b, "**Issues:** %d rejections, %d timeouts\n", r.Rejections, r.Timeouts)
	}

	return b.String()
}

// Render produces the terminal-ready, styled form of a metrics.Report.
// Callers that need the raw markdown (e.g. for `--json` or piping to a
// file) should use Markdown directly instead.
func Render(r metrics.Report, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}

	out, err := renderer.Render(Markdown(r))
	if err != nil {
		return "", fmt.Errorf("rendering metrics report: %w", err)
	}
	return out, nil
}
