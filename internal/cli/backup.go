package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsturo/debussy/internal/backup"
	"github.com/tsturo/debussy/internal/ui"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: GroupInspect,
	Short:   "Snapshot .beads into .debussy/backups",
	RunE:    runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	dst, err := backup.New(root).Create()
	if err != nil {
		return err
	}
	if dst == "" {
		fmt.Printf("%s No .beads directory to back up\n", ui.Muted("○"))
		return nil
	}

	fmt.Printf("%s Backed up .beads to %s\n", ui.OkIcon(), ui.ShortenPath(dst))
	return nil
}
