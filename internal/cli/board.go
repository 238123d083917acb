package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tsturo/debussy/internal/beads"
	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/tui/board"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: GroupInspect,
	Short:   "Open the interactive bead/agent board",
	RunE:    runBoard,
}

func init() {
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	tracker := beads.New(root)
	store := config.New(configPath(root))
	if err := store.Load(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	m := board.New(tracker, store, statePath(root))
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
