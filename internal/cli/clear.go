package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsturo/debussy/internal/backup"
	"github.com/tsturo/debussy/internal/ui"
)

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: GroupConfig,
	Short:   "Reset runtime pipeline state, keeping configuration",
	Long: `Backs up .beads, then removes the watcher's runtime state
(watcher_state.json, pipeline_events.jsonl, mailbox.jsonl) for a clean
restart. config.json and pipeline.toml are left untouched.

Refuses to run while the watcher is running; stop it first.`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	if pid, alive := watcherPID(root); alive {
		return fmt.Errorf("watcher is running (PID %d); stop it before clearing state", pid)
	}

	dst, err := backup.New(root).Create()
	if err != nil {
		return err
	}
	if dst != "" {
		fmt.Printf("%s Backed up .beads to %s\n", ui.OkIcon(), ui.ShortenPath(dst))
	}

	for _, p := range []string{statePath(root), eventsPath(root), mailboxPath(root)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}

	fmt.Printf("%s Cleared pipeline runtime state\n", ui.OkIcon())
	return nil
}
