package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func seedBeads(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, ".beads")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir .beads: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "issues.db"), []byte("fake db"), 0644); err != nil {
		t.Fatalf("seed issues.db: %v", err)
	}
}

func TestCreateCopiesBeadsDirectory(t *testing.T) {
	root := t.TempDir()
	seedBeads(t, root)

	m := New(root)
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	dst, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if filepath.Base(dst) != "beads_20260102-030405" {
		t.Fatalf("unexpected backup name: %s", filepath.Base(dst))
	}

	data, err := os.ReadFile(filepath.Join(dst, "issues.db"))
	if err != nil {
		t.Fatalf("reading backed-up file: %v", err)
	}
	if string(data) != "fake db" {
		t.Fatalf("unexpected backed-up contents: %q", data)
	}
}

func TestCreateOnMissingBeadsIsNotAnError(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	dst, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if dst != "" {
		t.Fatalf("expected no backup path for missing .beads, got %q", dst)
	}
}

func TestListReturnsBackupsOldestFirst(t *testing.T) {
	root := t.TempDir()
	seedBeads(t, root)
	m := New(root)

	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }
	if _, err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}

	backups, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(backups))
	}
	if filepath.Base(backups[0]) != "beads_20260101-000000" {
		t.Fatalf("expected oldest backup first, got %v", backups)
	}
}

func TestListOnMissingBackupDir(t *testing.T) {
	root := t.TempDir()
	m := New(root)
	backups, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if backups != nil {
		t.Fatalf("expected nil for missing backup dir, got %v", backups)
	}
}

func TestPruneKeepsMostRecent(t *testing.T) {
	root := t.TempDir()
	seedBeads(t, root)
	m := New(root)

	m.now = func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) }
	old, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	oldTime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(old, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Prune(24 * time.Hour); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	backups, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected the old backup pruned, got %v", backups)
	}
}
