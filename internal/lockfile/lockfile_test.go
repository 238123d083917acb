package lockfile

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.lock")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading lock file: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("expected lock file to contain our pid, got %q", data)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed after Release")
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.lock")

	// A PID that is guaranteed not to be alive: spawn and wait for exit.
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("running true: %v", err)
	}
	deadPID := cmd.Process.Pid

	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0644); err != nil {
		t.Fatalf("seeding stale pid file: %v", err)
	}

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale pid: %v", err)
	}
	defer lock.Release()

	data, _ := os.ReadFile(path)
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("expected lock file rewritten with our pid, got %q", data)
	}
}

func TestAcquireFailsAgainstLivePeer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.lock")

	// A process that traps and ignores SIGTERM, so Acquire observes it
	// still alive after the stale-takeover attempt and gives up.
	cmd := exec.Command("bash", "-c", `trap "" TERM; sleep 5`)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	defer func() { _ = cmd.Process.Kill(); _, _ = cmd.Process.Wait() }()

	if err := os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)), 0644); err != nil {
		t.Fatalf("seeding live pid file: %v", err)
	}

	start := time.Now()
	_, err := Acquire(path)
	if err == nil {
		t.Fatalf("expected Acquire to fail against a live, SIGTERM-ignoring peer")
	}
	if time.Since(start) < StaleWait {
		t.Fatalf("expected Acquire to wait out StaleWait before giving up")
	}
}
