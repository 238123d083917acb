package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestRunBackupNoBeadsDir(t *testing.T) {
	initTestRepo(t)
	if err := runBackup(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runBackup: %v", err)
	}
}

func TestRunBackupCopiesBeads(t *testing.T) {
	root := initTestRepo(t)
	beadsDir := filepath.Join(root, ".beads")
	if err := os.MkdirAll(beadsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(beadsDir, "issues.db"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runBackup(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runBackup: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, ".debussy", "backups"))
	if err != nil {
		t.Fatalf("reading backups dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one backup, got %d", len(entries))
	}
}
