package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tsturo/debussy/internal/eventlog"
	"github.com/tsturo/debussy/internal/metrics"
	"github.com/tsturo/debussy/internal/report"
)

var metricsJSON bool

var metricsCmd = &cobra.Command{
	Use:     "metrics",
	GroupID: GroupInspect,
	Short:   "Report pipeline throughput and per-stage durations",
	Long: `Folds pipeline_events.jsonl into a throughput report: bead
trails, per-stage average duration, rejection and timeout counts. Prints
a glamour-rendered markdown table to a terminal, plain markdown
otherwise, or raw JSON with --json.`,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "emit machine-readable JSON instead of a rendered report")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	events := eventlog.New(eventsPath(root)).All()
	r := metrics.Compute(events)

	if metricsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println(report.Markdown(r))
		return nil
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	out, err := report.Render(r, width)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	fmt.Print(out)
	return nil
}
