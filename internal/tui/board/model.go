// Package board implements the `debussy board` live table: a
// bubbletea.Model that polls external state on a ticker and renders a
// row-selectable list of beads. The board reads tracker state
// in-process through the same beads.Tracker the watcher itself uses,
// and reads the watcher's live-agent snapshot straight off
// watcher_state.json (the same file internal/watcher persists every
// cycle) since the board runs as a separate process from the watcher
// loop.
package board

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tsturo/debussy/internal/beads"
	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/model"
)

// pollInterval is how often the board re-reads tracker and agent state.
const pollInterval = 3 * time.Second

// persistedState mirrors the shape internal/watcher writes to
// watcher_state.json. Duplicated here rather than imported because the
// watcher's state type is unexported and the board has no other reason
// to depend on the watcher package.
type persistedState struct {
	Agents     map[string]*model.Agent `json:"agents"`
	Rejections map[string]int          `json:"rejections"`
}

// row is one rendered line of the board: a bead plus whatever live agent
// (if any) is currently working it.
type row struct {
	bead  *model.Bead
	agent *model.Agent
}

// Model is the bubbletea model for the board TUI.
type Model struct {
	width  int
	height int

	tracker   beads.Tracker
	store     *config.Store
	statePath string

	rows         []row
	selected     int
	stageFilter  model.Stage // "" means no filter
	err          error
	status       string
	lastRefresh  time.Time

	keys     KeyMap
	help     help.Model
	showHelp bool
}

// New creates a board Model that reads bead state through tracker and
// live-agent state from statePath (normally .debussy/watcher_state.json
// under the repository root).
func New(tracker beads.Tracker, store *config.Store, statePath string) *Model {
	h := help.New()
	h.ShowAll = false

	return &Model{
		tracker:   tracker,
		store:     store,
		statePath: statePath,
		keys:      DefaultKeyMap(),
		help:      h,
	}
}

// Init starts the first fetch and the poll ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetch(),
		m.startPolling(),
		tea.SetWindowTitle("debussy board"),
	)
}

type fetchMsg struct {
	rows []row
	err  error
}

type tickMsg time.Time

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		all := m.tracker.ListAll()

		agents := make(map[string]*model.Agent)
		if data, err := os.ReadFile(m.statePath); err == nil {
			var st persistedState
			if err := json.Unmarshal(data, &st); err == nil {
				agents = st.Agents
			}
		}

		rows := make([]row, 0, len(all))
		for _, b := range all {
			rows = append(rows, row{bead: b, agent: agents[b.ID]})
		}

		sort.Slice(rows, func(i, j int) bool {
			return rows[i].bead.ID < rows[j].bead.ID
		})

		return fetchMsg{rows: rows}
	}
}

func (m *Model) startPolling() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles bubbletea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch {
		case msg.String() == "q" || msg.String() == "ctrl+c":
			return m, tea.Quit
		case msg.String() == "?":
			m.showHelp = !m.showHelp
		case msg.String() == "up" || msg.String() == "k":
			if m.selected > 0 {
				m.selected--
			}
		case msg.String() == "down" || msg.String() == "j":
			if m.selected < len(m.filteredRows())-1 {
				m.selected++
			}
		case msg.String() == "pgup" || msg.String() == "ctrl+u":
			m.selected = max0(m.selected - max0(m.height-8))
		case msg.String() == "pgdown" || msg.String() == "ctrl+d":
			m.selected += max0(m.height - 8)
			if last := max0(len(m.filteredRows()) - 1); m.selected > last {
				m.selected = last
			}
		case msg.String() == "s":
			m.stageFilter = nextStageFilter(m.stageFilter)
			m.selected = 0
		case msg.String() == "a":
			m.stageFilter = ""
			m.selected = 0
		case msg.String() == "R":
			cmds = append(cmds, m.fetch())
			m.status = "refreshing..."
		}

	case fetchMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.rows = msg.rows
			m.lastRefresh = time.Now()
			if m.selected >= len(m.filteredRows()) {
				m.selected = max0(len(m.filteredRows()) - 1)
			}
			m.status = fmt.Sprintf("%d beads", len(m.filteredRows()))
		}

	case tickMsg:
		cmds = append(cmds, m.fetch())
		cmds = append(cmds, m.startPolling())
	}

	return m, tea.Batch(cmds...)
}

// View renders the board.
func (m *Model) View() string {
	return m.renderView()
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// filteredRows applies the current stage filter, if any.
func (m *Model) filteredRows() []row {
	if m.stageFilter == "" {
		return m.rows
	}
	var out []row
	for _, r := range m.rows {
		if r.bead.Stage() == m.stageFilter {
			out = append(out, r)
		}
	}
	return out
}

// nextStageFilter cycles through model.AllStages then back to "" (all).
func nextStageFilter(current model.Stage) model.Stage {
	if current == "" {
		return model.AllStages[0]
	}
	for i, s := range model.AllStages {
		if s == current {
			if i+1 < len(model.AllStages) {
				return model.AllStages[i+1]
			}
			return ""
		}
	}
	return ""
}

// stageFilterLabel renders the active filter for the status line.
func (m *Model) stageFilterLabel() string {
	if m.stageFilter == "" {
		return "all"
	}
	return string(m.stageFilter)
}
