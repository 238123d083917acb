package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupInspect,
	Short:   "Show pipeline watcher status",
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	pid, alive := watcherPID(root)

	store := config.New(configPath(root))
	_ = store.Load()

	if alive {
		fmt.Printf("%s Watcher running (PID %d, v%s)\n", ui.OkIcon(), pid, Version)
		fmt.Println()
		fmt.Printf("  Workspace:  %s\n", ui.ShortenPath(root))
		if info, err := os.Stat(lockPath(root)); err == nil {
			fmt.Printf("  Started:    %s (%s)\n", info.ModTime().Format("2006-01-02 15:04:05"), ui.RelativeTime(info.ModTime()))
		}
		if info, err := os.Stat(statePath(root)); err == nil {
			fmt.Printf("  Last cycle: %s\n", ui.RelativeTime(info.ModTime()))
		}
		fmt.Printf("  Log:        %s\n", ui.ShortenPath(logPath(root)))
	} else {
		fmt.Printf("%s Watcher not running\n", ui.Muted("○"))
		fmt.Println()
		fmt.Printf("  Workspace:  %s\n", ui.ShortenPath(root))
		fmt.Println()
		fmt.Printf("  Start with: %s\n", ui.Muted("debussy start"))
	}

	if store.Paused() {
		fmt.Println()
		fmt.Printf("  %s Pipeline is paused\n", ui.WarnIcon())
	}

	return nil
}
