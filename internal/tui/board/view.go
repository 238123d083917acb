package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	colBead   = 12
	colStatus = 12
	colStage  = 16
	colAgent  = 28
	colAge    = 8
)

func (m *Model) renderView() string {
	var b strings.Builder

	if m.width < 40 || m.height < 10 {
		return "Terminal too small. Please resize."
	}

	title := "debussy board"
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if m.store != nil && m.store.Paused() {
		b.WriteString(pausedBannerStyle.Render("⏸ pipeline paused"))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	rows := m.filteredRows()
	if len(rows) == 0 {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("No beads match the current filter."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderHeader())
		b.WriteString("\n")

		maxRows := m.height - 8
		if maxRows < 1 {
			maxRows = 1
		}
		for i, r := range rows {
			if i >= maxRows {
				b.WriteString(helpStyle.Render(fmt.Sprintf("  ... and %d more", len(rows)-i)))
				b.WriteString("\n")
				break
			}
			b.WriteString(m.renderRow(r, i == m.selected))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(statusStyle.Render(fmt.Sprintf("%s — filter: %s", m.status, m.stageFilterLabel())))
		b.WriteString("\n")
	}

	if m.showHelp {
		m.help.ShowAll = true
		b.WriteString(m.help.View(m.keys))
	} else {
		b.WriteString(helpStyle.Render("j/k: navigate  s: cycle stage  a: all  R: refresh  ?: help  q: quit"))
	}

	return b.String()
}

func (m *Model) renderHeader() string {
	return headerStyle.Render(
		padRight("BEAD", colBead) +
			padRight("STATUS", colStatus) +
			padRight("STAGE", colStage) +
			padRight("AGENT", colAgent) +
			padRight("AGE", colAge),
	)
}

func (m *Model) renderRow(r row, selected bool) string {
	stage := string(r.bead.Stage())
	if stage == "" {
		stage = "-"
	}

	agent := "-"
	age := "-"
	if r.agent != nil {
		agent = fmt.Sprintf("%s (%s)", r.agent.Name, r.agent.Role)
		age = formatAge(r.agent.Runtime(time.Now()))
	}

	statusCell := lipgloss.NewStyle().Foreground(statusColor(string(r.bead.Status))).Render(
		padRight(string(r.bead.Status), colStatus),
	)

	line := padRight(r.bead.ID, colBead) +
		statusCell +
		padRight(stage, colStage) +
		padRight(agent, colAgent) +
		padRight(age, colAge)

	if selected {
		return selectedRowStyle.Render(line)
	}
	return normalRowStyle.Render(line)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}
