// Package worktree manages the per-agent git worktrees described in
// spec.md §4.3: one directory per live agent under .debussy-worktrees/,
// checked out according to the spawned role, with the tracker database
// and watcher state symlinked in so the agent shares both.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsturo/debussy/internal/gitutil"
	"github.com/tsturo/debussy/internal/logging"
	"github.com/tsturo/debussy/internal/model"
)

const dirName = ".debussy-worktrees"

// Manager creates and destroys per-agent worktrees rooted at a main
// checkout.
type Manager struct {
	root string // main checkout root, holding .beads and .debussy
	git  *gitutil.Git
	log  *logging.Logger
}

// New creates a Manager rooted at root (the main checkout).
func New(root string) *Manager {
	return &Manager{root: root, git: gitutil.NewGit(root), log: logging.Default("worktree")}
}

// Dir returns the per-agent directory for a given agent name.
func (m *Manager) Dir(agentName string) string {
	return filepath.Join(m.root, dirName, agentName)
}

// FeatureBranch returns the per-bead branch name.
func FeatureBranch(beadID string) string {
	return "feature/" + beadID
}

// Create checks out a worktree for role at Dir(agentName), for a bead on
// the given base branch, and symlinks .beads/.debussy into it. The
// investigator role never gets a worktree; callers should not call
// Create for it.
func (m *Manager) Create(role model.Role, agentName, beadID, base string) (string, error) {
	path := m.Dir(agentName)

	branch := FeatureBranch(beadID)
	if err := m.evictExistingHolder(branch); err != nil {
		return "", fmt.Errorf("evicting existing holder of %s: %w", branch, err)
	}

	if err := os.MkdirAll(filepath.Join(m.root, dirName), 0755); err != nil {
		return "", fmt.Errorf("creating worktree parent dir: %w", err)
	}

	if err := m.checkout(role, path, branch, base); err != nil {
		return "", fmt.Errorf("checking out worktree: %w", err)
	}

	if err := m.linkSharedDirs(path); err != nil {
		m.log.Warn("linking shared dirs for %s: %v", agentName, err)
	}

	return path, nil
}

func (m *Manager) checkout(role model.Role, path, branch, base string) error {
	switch role {
	case model.RoleDeveloper:
		if m.git.RemoteBranchExists("origin", branch) {
			return m.git.WorktreeAdd(path, branch, "origin/"+branch, false, false)
		}
		if m.git.BranchExists(branch) {
			return m.git.WorktreeAdd(path, branch, "", false, false)
		}
		return m.git.WorktreeAdd(path, branch, "origin/"+base, true, false)

	case model.RoleReviewer, model.RoleSecurityReviewer:
		return m.git.WorktreeAdd(path, "origin/"+branch, "", false, true)

	case model.RoleIntegrator, model.RoleTester:
		return m.git.WorktreeAdd(path, "origin/"+base, "", false, true)

	default:
		return fmt.Errorf("role %s does not use a worktree", role)
	}
}

// evictExistingHolder removes whatever worktree currently holds branch,
// per spec.md §4.3 ("before creating a worktree on branch B, if another
// worktree already holds B, remove it first").
func (m *Manager) evictExistingHolder(branch string) error {
	entries, err := m.git.WorktreeList()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Branch == branch {
			return m.Remove(e.Path)
		}
	}
	return nil
}

func (m *Manager) linkSharedDirs(path string) error {
	for _, name := range []string{".beads", ".debussy"} {
		target := filepath.Join(m.root, name)
		link := filepath.Join(path, name)
		if _, err := os.Lstat(link); err == nil {
			continue
		}
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("symlinking %s: %w", name, err)
		}
	}
	return nil
}

// Remove tears down a worktree by path. It tries a clean git removal
// first, then falls back to deleting the directory and pruning stale
// administrative state, matching spec.md §4.3's teardown fallback.
func (m *Manager) Remove(path string) error {
	if err := m.git.WorktreeRemove(path, true); err != nil {
		m.log.Warn("worktree remove --force failed for %s, falling back to rm + prune: %v", path, err)
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("removing worktree dir %s: %w", path, rmErr)
		}
		_ = m.git.WorktreePrune()
	}
	return nil
}

// PruneStale removes worktree directories that git no longer lists, and
// deletes local feature/* branches with no remote counterpart. Meant to
// run on watcher startup and periodically (spec.md §4.3).
func (m *Manager) PruneStale() {
	if err := m.git.WorktreePrune(); err != nil {
		m.log.Warn("worktree prune: %v", err)
	}

	branches, err := m.git.LocalBranches()
	if err != nil {
		m.log.Warn("listing local branches: %v", err)
		return
	}
	for _, b := range branches {
		if !isFeatureBranch(b) {
			continue
		}
		if m.git.RemoteBranchExists("origin", b) {
			continue
		}
		if err := m.git.DeleteBranch(b, true); err != nil {
			m.log.Warn("deleting stale local branch %s: %v", b, err)
		}
	}
}

// DeleteClosedRemoteBranch deletes the remote feature branch for a bead
// that has closed, per spec.md §8's invariant that closed beads carry no
// feature branch locally or on origin.
func (m *Manager) DeleteClosedRemoteBranch(beadID string) {
	branch := FeatureBranch(beadID)
	if m.git.BranchExists(branch) {
		if err := m.git.DeleteBranch(branch, true); err != nil {
			m.log.Warn("deleting local branch %s: %v", branch, err)
		}
	}
	if m.git.RemoteBranchExists("origin", branch) {
		if err := m.git.DeleteRemoteBranch("origin", branch); err != nil {
			m.log.Warn("deleting remote branch %s: %v", branch, err)
		}
	}
}

func isFeatureBranch(name string) bool {
	return len(name) > len("feature/") && name[:len("feature/")] == "feature/"
}
