// Package gitutil wraps the git CLI for the worktree manager and
// transition engine, shelling out via exec.CommandContext rather than
// linking a git library in-process.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Timeout bounds every git invocation except fetch, which gets
// FetchTimeout per spec.md §5 ("30s for git fetch").
const (
	Timeout      = 5 * time.Second
	FetchTimeout = 30 * time.Second
)

// Git runs git commands rooted at Dir.
type Git struct {
	Dir string
}

// NewGit creates a Git rooted at dir.
func NewGit(dir string) *Git {
	return &Git{Dir: dir}
}

func (g *Git) run(timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %v: %w (%s)", args, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether Dir is inside a git working tree.
func (g *Git) IsRepo() bool {
	_, err := g.run(Timeout, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch() (string, error) {
	return g.run(Timeout, "rev-parse", "--abbrev-ref", "HEAD")
}

// Rev resolves a ref to a commit hash.
func (g *Git) Rev(ref string) (string, error) {
	return g.run(Timeout, "rev-parse", ref)
}

// Status returns porcelain status output.
func (g *Git) Status() (string, error) {
	return g.run(Timeout, "status", "--porcelain")
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (g *Git) HasUncommittedChanges() (bool, error) {
	out, err := g.Status()
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Add stages paths (or everything, with ".").
func (g *Git) Add(paths ...string) error {
	args := append([]string{"add"}, paths...)
	_, err := g.run(Timeout, args...)
	return err
}

// Commit creates a commit with the given message.
func (g *Git) Commit(message string) error {
	_, err := g.run(Timeout, "commit", "-m", message)
	return err
}

// CreateBranch creates a new branch at the given start point (or HEAD
// if startPoint is "").
func (g *Git) CreateBranch(name, startPoint string) error {
	args := []string{"branch", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, err := g.run(Timeout, args...)
	return err
}

// Checkout checks out a ref, optionally detached.
func (g *Git) Checkout(ref string, detach bool) error {
	args := []string{"checkout"}
	if detach {
		args = append(args, "--detach")
	}
	args = append(args, ref)
	_, err := g.run(Timeout, args...)
	return err
}

// FetchBranch fetches a single branch from origin.
func (g *Git) FetchBranch(remote, branch string) error {
	_, err := g.run(FetchTimeout, "fetch", remote, branch)
	return err
}

// Fetch fetches all refs from a remote.
func (g *Git) Fetch(remote string) error {
	_, err := g.run(FetchTimeout, "fetch", remote)
	return err
}

// RemoteExists reports whether a remote with the given name is
// configured. The watcher treats a missing "origin" remote as fatal at
// startup (spec.md §4.8).
func (g *Git) RemoteExists(name string) bool {
	_, err := g.run(Timeout, "remote", "get-url", name)
	return err == nil
}

// BranchExists reports whether a local branch exists.
func (g *Git) BranchExists(name string) bool {
	_, err := g.run(Timeout, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// RemoteBranchExists reports whether remote/branch exists.
func (g *Git) RemoteBranchExists(remote, branch string) bool {
	_, err := g.run(Timeout, "show-ref", "--verify", "--quiet", "refs/remotes/"+remote+"/"+branch)
	return err == nil
}

// DeleteBranch deletes a local branch. force uses -D instead of -d.
func (g *Git) DeleteBranch(name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := g.run(Timeout, "branch", flag, name)
	return err
}

// DeleteRemoteBranch deletes branch on remote via a push.
func (g *Git) DeleteRemoteBranch(remote, branch string) error {
	_, err := g.run(FetchTimeout, "push", remote, "--delete", branch)
	return err
}

// CommitsAheadOfBase reports how many commits ref has beyond base.
func (g *Git) CommitsAheadOfBase(ref, base string) (int, error) {
	out, err := g.run(Timeout, "rev-list", "--count", base+".."+ref)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(out, "%d", &n); err != nil {
		return 0, fmt.Errorf("parsing rev-list count %q: %w", out, err)
	}
	return n, nil
}

// IsAncestor reports whether ancestor is an ancestor of descendant.
func (g *Git) IsAncestor(ancestor, descendant string) bool {
	_, err := g.run(Timeout, "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil
}

// WorktreeAdd creates a worktree at path checked out to branch. If
// create is true, branch is created fresh from startPoint; otherwise the
// existing branch/ref is checked out (detached if detach is true).
func (g *Git) WorktreeAdd(path, branch, startPoint string, create, detach bool) error {
	args := []string{"worktree", "add"}
	if detach {
		args = append(args, "--detach")
		args = append(args, path, branch)
	} else if create {
		args = append(args, "-b", branch, path)
		if startPoint != "" {
			args = append(args, startPoint)
		}
	} else {
		args = append(args, path, branch)
	}
	_, err := g.run(Timeout, args...)
	return err
}

// WorktreeRemove removes a worktree. force discards uncommitted changes.
func (g *Git) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := g.run(Timeout, args...)
	return err
}

// WorktreePrune removes administrative files for worktrees whose
// directories no longer exist.
func (g *Git) WorktreePrune() error {
	_, err := g.run(Timeout, "worktree", "prune")
	return err
}

// WorktreeEntry is one line of `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path   string
	Branch string
}

// WorktreeList parses `git worktree list --porcelain`.
func (g *Git) WorktreeList() ([]WorktreeEntry, error) {
	out, err := g.run(Timeout, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var entries []WorktreeEntry
	var cur WorktreeEntry
	flush := func() {
		if cur.Path != "" {
			entries = append(entries, cur)
		}
		cur = WorktreeEntry{}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return entries, nil
}

// LocalBranches lists all local branch names.
func (g *Git) LocalBranches() ([]string, error) {
	out, err := g.run(Timeout, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
