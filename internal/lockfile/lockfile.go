// Package lockfile implements the watcher's single-instance guarantee
// (spec.md §4.8/§9: "two watchers in the same repository are forbidden,
// actively prevented via the PID lock"). A gofrs/flock advisory lock
// over a PID file, extended with a stale-PID SIGTERM-and-wait takeover
// rather than simply refusing to start when the lock is held.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/tsturo/debussy/internal/logging"
)

// ErrHeld is returned when the lock is held by another live process that
// did not exit within StaleWait of being sent SIGTERM.
var ErrHeld = errors.New("watcher lock held by a live process")

// StaleWait bounds how long Acquire waits for a stale watcher to exit
// after SIGTERM, per spec.md §4.8.
const StaleWait = 5 * time.Second

// Lock is a held watcher.lock file.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes the PID lock at path. If the file names a PID that is
// still alive, that process is sent SIGTERM and given up to StaleWait to
// exit before this call gives up and returns ErrHeld.
func Acquire(path string) (*Lock, error) {
	log := logging.Default("lockfile")

	if pid, ok := readPID(path); ok && pid != os.Getpid() && alive(pid) {
		log.Info("found live watcher pid %d at %s, sending SIGTERM", pid, path)
		terminate(pid)
		if alive(pid) {
			return nil, fmt.Errorf("%w: pid %d did not exit within %s", ErrHeld, pid, StaleWait)
		}
		log.Info("stale watcher pid %d exited", pid)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrHeld, path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("writing pid to %s: %w", path, err)
	}

	return &Lock{path: path, fl: fl}, nil
}

// Release unlocks and removes the lock file.
func (l *Lock) Release() error {
	defer func() { _ = os.Remove(l.path) }()
	return l.fl.Unlock()
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func terminate(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(StaleWait)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
