package gitutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run(t, dir, "init")
	run(t, dir, "config", "user.email", "test@test.com")
	run(t, dir, "config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", "initial")

	return dir
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestIsRepo(t *testing.T) {
	dir := t.TempDir()
	g := NewGit(dir)
	if g.IsRepo() {
		t.Fatalf("expected not a repo")
	}

	dir = initTestRepo(t)
	g = NewGit(dir)
	if !g.IsRepo() {
		t.Fatalf("expected a repo")
	}
}

func TestCurrentBranchAndRev(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)

	branch, err := g.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch == "" {
		t.Fatalf("expected non-empty branch name")
	}

	rev, err := g.Rev("HEAD")
	if err != nil {
		t.Fatalf("Rev: %v", err)
	}
	if len(rev) < 7 {
		t.Fatalf("expected a commit hash, got %q", rev)
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)

	dirty, err := g.HasUncommittedChanges()
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if dirty {
		t.Fatalf("expected clean tree")
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dirty, err = g.HasUncommittedChanges()
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if !dirty {
		t.Fatalf("expected dirty tree")
	}
}

func TestCreateBranchAndIsAncestor(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)

	if err := g.CreateBranch("feature/bd-001", "HEAD"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if !g.BranchExists("feature/bd-001") {
		t.Fatalf("expected branch to exist")
	}
	if !g.IsAncestor("HEAD", "feature/bd-001") {
		t.Fatalf("expected HEAD to be an ancestor of a branch created at HEAD")
	}
}

func TestWorktreeAddListRemove(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)

	wtPath := filepath.Join(t.TempDir(), "agent-1")
	if err := g.WorktreeAdd(wtPath, "feature/bd-002", "HEAD", true, false); err != nil {
		t.Fatalf("WorktreeAdd: %v", err)
	}

	entries, err := g.WorktreeList()
	if err != nil {
		t.Fatalf("WorktreeList: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Branch == "feature/bd-002" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected feature/bd-002 worktree to be listed, got %+v", entries)
	}

	if err := g.WorktreeRemove(wtPath, true); err != nil {
		t.Fatalf("WorktreeRemove: %v", err)
	}
}

func TestDeleteBranch(t *testing.T) {
	dir := initTestRepo(t)
	g := NewGit(dir)

	if err := g.CreateBranch("throwaway", "HEAD"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := g.DeleteBranch("throwaway", false); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if g.BranchExists("throwaway") {
		t.Fatalf("expected branch to be gone")
	}
}
