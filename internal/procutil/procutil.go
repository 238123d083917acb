// Package procutil terminates background-mode agent processes for the
// watcher's timeout and cleanup steps (spec.md §4.8 steps 2-3). Agents
// are launched with their own process group (internal/spawner sets
// Setpgid) so a signal here reaches any subprocess the agent CLI itself
// spawned, not just the direct child — this reasons about process
// trees (signal the whole group) rather than single PIDs.
package procutil

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// KillWait bounds how long Stop waits after SIGTERM before escalating to
// SIGKILL.
const KillWait = 2 * time.Second

// Alive reports whether pid is still running.
func Alive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

// Stop terminates pid's process group: SIGTERM, wait up to KillWait,
// then SIGKILL if it's still alive. Used whenever the watcher decides an
// agent must die, whether from agent_timeout or from the watcher
// shutting down.
func Stop(pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		pgid = pid
	}

	if err := signalGroup(pgid, unix.SIGTERM); err != nil && Alive(pid) {
		return fmt.Errorf("sending SIGTERM to process group %d: %w", pgid, err)
	}

	deadline := time.Now().Add(KillWait)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if Alive(pid) {
		_ = signalGroup(pgid, unix.SIGKILL)
	}
	return nil
}

func signalGroup(pgid int, sig unix.Signal) error {
	return unix.Kill(-pgid, sig)
}
