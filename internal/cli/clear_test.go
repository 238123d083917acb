package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestRunClearRemovesRuntimeState(t *testing.T) {
	root := initTestRepo(t)
	if err := os.MkdirAll(filepath.Join(root, ".debussy"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{statePath(root), eventsPath(root), mailboxPath(root)} {
		if err := os.WriteFile(p, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := runClear(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runClear: %v", err)
	}

	for _, p := range []string{statePath(root), eventsPath(root), mailboxPath(root)} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", p)
		}
	}
}

func TestRunClearRefusesWhileRunning(t *testing.T) {
	root := initTestRepo(t)
	if err := os.MkdirAll(filepath.Join(root, ".debussy"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lockPath(root), []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runClear(&cobra.Command{}, nil); err == nil {
		t.Fatalf("expected error while watcher appears to be running")
	}
}
