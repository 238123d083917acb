// Package beads is the only place in the watcher that shells out to the
// external issue tracker CLI, `bd`. It is a typed, short-timeout wrapper
// matching spec.md §4.1/§6: every network/process failure returns a
// zero value and is logged, never propagated as a fatal error.
package beads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/tsturo/debussy/internal/logging"
	"github.com/tsturo/debussy/internal/model"
)

// DefaultTimeout bounds every bd invocation, per spec.md §4.1 (5-10s).
const DefaultTimeout = 8 * time.Second

// Client wraps the `bd` CLI. dir is the working directory bd runs in
// (the main checkout, or a worktree with .beads symlinked in).
type Client struct {
	dir     string
	timeout time.Duration
	log     *logging.Logger
}

// New creates a Client rooted at dir with the default timeout.
func New(dir string) *Client {
	return &Client{dir: dir, timeout: DefaultTimeout, log: logging.Default("beads")}
}

// WithTimeout returns a copy of the client using a different timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	cp := *c
	cp.timeout = d
	return &cp
}

// beadJSON mirrors the JSON shape `bd show`/`bd list` emit.
type beadJSON struct {
	ID           string             `json:"id"`
	Status       string             `json:"status"`
	Labels       []string           `json:"labels"`
	ParentID     string             `json:"parent_id"`
	Dependencies []dependencyJSON   `json:"dependencies"`
	IssueType    string             `json:"issue_type"`
}

type dependencyJSON struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (b beadJSON) toModel() *model.Bead {
	deps := make([]model.Dependency, 0, len(b.Dependencies))
	for _, d := range b.Dependencies {
		deps = append(deps, model.Dependency{ID: d.ID, Status: model.Status(d.Status)})
	}
	return &model.Bead{
		ID:           b.ID,
		Status:       model.Status(b.Status),
		Labels:       b.Labels,
		ParentID:     b.ParentID,
		Dependencies: deps,
		IssueType:    b.IssueType,
	}
}

// run executes bd with the given args, bounded by c.timeout, and returns
// its stdout; stderr is only included in the Warn log on failure.
// Errors are logged at Warn level and returned so
// callers can distinguish "nothing found" from "command failed", but no
// caller should ever let a run() error crash the watcher loop.
func (c *Client) run(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bd", args...)
	cmd.Dir = c.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.log.Warn("bd %v failed: %v (%s)", args, err, stderr.String())
		return nil, fmt.Errorf("bd %v: %w", args, err)
	}
	return stdout.Bytes(), nil
}

// Get fetches a single bead by id. Returns (nil, nil) if bd reports the
// bead does not exist or the call fails — callers treat "none" as a
// legitimate, loggable-but-not-fatal outcome.
func (c *Client) Get(id string) (*model.Bead, error) {
	out, err := c.run("show", id, "--json")
	if err != nil {
		return nil, nil //nolint:nilerr // failures are swallowed per spec.md §4.1
	}

	var beads []beadJSON
	if err := json.Unmarshal(out, &beads); err != nil {
		// Some bd versions emit a single object rather than an array.
		var single beadJSON
		if err2 := json.Unmarshal(out, &single); err2 != nil {
			c.log.Warn("parsing bd show %s: %v", id, err)
			return nil, nil
		}
		return single.toModel(), nil
	}
	if len(beads) == 0 {
		return nil, nil
	}
	return beads[0].toModel(), nil
}

// List returns every bead with the given status, optionally filtered by
// label. Returns nil on failure.
func (c *Client) List(status model.Status, label string) []*model.Bead {
	args := []string{"list", "--status", string(status), "--json", "--limit", "0"}
	if label != "" {
		args = append(args, "--label", label)
	}
	out, err := c.run(args...)
	if err != nil {
		return nil
	}

	var beads []beadJSON
	if err := json.Unmarshal(out, &beads); err != nil {
		c.log.Warn("parsing bd list: %v", err)
		return nil
	}
	out2 := make([]*model.Bead, 0, len(beads))
	for _, b := range beads {
		out2 = append(out2, b.toModel())
	}
	return out2
}

// ListAll returns the union of beads across every status, deduplicated
// by id (first occurrence wins).
func (c *Client) ListAll() []*model.Bead {
	seen := make(map[string]bool)
	var all []*model.Bead
	for _, s := range []model.Status{model.StatusOpen, model.StatusInProgress, model.StatusBlocked, model.StatusClosed} {
		for _, b := range c.List(s, "") {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			all = append(all, b)
		}
	}
	return all
}

// Update is the set of mutations a single `bd update` call can apply.
type Update struct {
	Status       model.Status
	AddLabels    []string
	RemoveLabels []string
}

// Update applies u to bead id. An Update with no status and no label
// changes issues no bd call and returns nil.
func (c *Client) Update(id string, u Update) error {
	args := []string{"update", id}
	if u.Status != "" {
		args = append(args, "--status", string(u.Status))
	}
	for _, l := range u.AddLabels {
		args = append(args, "--add-label", l)
	}
	for _, l := range u.RemoveLabels {
		args = append(args, "--remove-label", l)
	}
	if len(args) == 2 {
		return nil
	}
	_, err := c.run(args...)
	return err
}

// Comment appends a comment to a bead.
func (c *Client) Comment(id, text string) error {
	_, err := c.run("comment", id, text)
	return err
}

// Init initializes a fresh tracker database in c.dir.
func (c *Client) Init() error {
	_, err := c.run("init")
	return err
}

// UnresolvedDeps returns the ids of b's dependencies that are not
// closed. It trusts the embedded dependency status first; if a
// dependency has no embedded status it falls back to a live lookup.
func (c *Client) UnresolvedDeps(b *model.Bead) []string {
	var out []string
	for _, d := range b.Dependencies {
		if d.Status != "" {
			if d.Unresolved() {
				out = append(out, d.ID)
			}
			continue
		}
		dep, _ := c.Get(d.ID)
		if dep == nil || dep.Status != model.StatusClosed {
			out = append(out, d.ID)
		}
	}
	return out
}
