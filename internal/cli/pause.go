package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/ui"
)

var pauseCmd = &cobra.Command{
	Use:     "pause",
	GroupID: GroupPipeline,
	Short:   "Pause the pipeline (stop spawning new agents)",
	Long: `Pause marks the pipeline paused in config.json. A running watcher
checks this flag every cycle and stops spawning new agents, but leaves
agents already in flight alone.`,
	RunE: runPause,
}

var resumeCmd = &cobra.Command{
	Use:     "resume",
	GroupID: GroupPipeline,
	Short:   "Resume a paused pipeline",
	RunE:    runResume,
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}

func setPaused(v bool, verb string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	store := config.New(configPath(root))
	if err := store.Load(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := store.SetPaused(v); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("%s Pipeline %s\n", ui.OkIcon(), verb)
	return nil
}

func runPause(cmd *cobra.Command, args []string) error  { return setPaused(true, "paused") }
func runResume(cmd *cobra.Command, args []string) error { return setPaused(false, "resumed") }
