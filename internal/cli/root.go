// Package cli provides the debussy command-line tree: a thin layer
// over internal/watcher, internal/beads, internal/config, internal/tui,
// and internal/report that starts/stops the pipeline watcher and
// reports on its state.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "debussy",
	Short:   "debussy - multi-agent pipeline watcher",
	Version: Version,
	Long: `debussy drives work items through a develop -> review ->
[security-review] -> merge -> acceptance pipeline, spawning one agent
CLI per bead per stage and advancing it based on the terminal state the
agent leaves behind.`,
}

// Command group IDs, used by subcommands to organize help output.
const (
	GroupPipeline = "pipeline"
	GroupInspect  = "inspect"
	GroupConfig   = "config"
)

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupPipeline, Title: "Pipeline:"},
		&cobra.Group{ID: GroupInspect, Title: "Inspection:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID(GroupInspect)
	rootCmd.SetCompletionCommandGroupID(GroupConfig)
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// buildCommandPath walks the command hierarchy to build the full
// invocation path, e.g. "debussy watcher run".
func buildCommandPath(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		parts = append([]string{c.Name()}, parts...)
	}
	return strings.Join(parts, " ")
}

// requireSubcommand is used as RunE for parent commands with no action
// of their own, so an unknown subcommand is a hard error rather than a
// silent exit 0.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("requires a subcommand\n\nRun '%s --help' for usage", buildCommandPath(cmd))
	}
	return fmt.Errorf("unknown command %q for %q\n\nRun '%s --help' for available commands",
		args[0], buildCommandPath(cmd), buildCommandPath(cmd))
}
