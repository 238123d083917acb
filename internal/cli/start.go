package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsturo/debussy/internal/ui"
	"github.com/tsturo/debussy/internal/watcher"
)

var startCmd = &cobra.Command{
	Use:     "start",
	GroupID: GroupPipeline,
	Short:   "Start the pipeline watcher in the background",
	Long: `Start the watcher as a detached background process. It holds
.debussy/watcher.lock for as long as it runs; 'debussy start' while one
is already running is an error, not a restart.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:     "stop",
	GroupID: GroupPipeline,
	Short:   "Stop the running pipeline watcher",
	RunE:    runStop,
}

// watcherRunCmd is the foreground loop 'start' launches as a detached
// child; not meant to be invoked directly by an operator.
var watcherRunCmd = &cobra.Command{
	Use:    "watcher-run",
	Hidden: true,
	RunE:   runWatcherRun,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(watcherRunCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	if pid, alive := watcherPID(root); alive {
		return fmt.Errorf("watcher already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding debussy executable: %w", err)
	}

	logFile, err := os.OpenFile(logPath(root), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening watcher log: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, "watcher-run")
	child.Dir = root
	child.Stdin = nil
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	// Give the child a moment to acquire the lock before reporting.
	time.Sleep(200 * time.Millisecond)

	pid, alive := watcherPID(root)
	if !alive {
		return fmt.Errorf("watcher failed to start (check %s)", logPath(root))
	}

	fmt.Printf("%s Watcher started (PID %d, v%s)\n", ui.OkIcon(), pid, Version)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	pid, alive := watcherPID(root)
	if !alive {
		return fmt.Errorf("watcher is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding watcher process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stopping watcher (PID %d): %w", pid, err)
	}

	fmt.Printf("%s Watcher stopped (was PID %d)\n", ui.OkIcon(), pid)
	return nil
}

func runWatcherRun(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	w, err := watcher.New(root, watcher.DefaultSession)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	return w.Run()
}
