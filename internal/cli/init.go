package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/gitutil"
	"github.com/tsturo/debussy/internal/ui"
)

var initBaseBranch string

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: GroupConfig,
	Short:   "Initialize debussy state in the current repository",
	Long: `Create .debussy/ in the current repository: a default
pipeline.toml topology and a config.json naming the base branch beads
are merged into.

Safe to run more than once; an existing pipeline.toml is left alone.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initBaseBranch, "base-branch", "", "base branch beads merge into (defaults to the current branch)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	if _, err := debussyDir(root); err != nil {
		return err
	}

	git := gitutil.NewGit(root)
	if !git.RemoteExists("origin") {
		return fmt.Errorf("no git remote 'origin' configured in %s", root)
	}

	base := initBaseBranch
	if base == "" {
		base, err = git.CurrentBranch()
		if err != nil {
			return fmt.Errorf("detecting current branch: %w", err)
		}
	}

	store := config.New(configPath(root))
	if err := store.Load(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := store.SetBaseBranch(base); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	mPath := manifestPath(root)
	if _, err := os.Stat(mPath); os.IsNotExist(err) {
		f, err := os.Create(mPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", mPath, err)
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(config.DefaultManifest()); err != nil {
			return fmt.Errorf("writing %s: %w", mPath, err)
		}
	}

	fmt.Printf("%s Initialized debussy in %s (base branch %q)\n", ui.OkIcon(), ui.ShortenPath(root), base)
	return nil
}
