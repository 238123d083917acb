// Package watcher implements the single supervisor process described in
// spec.md §4.8: it owns the PID lock, the in-memory agent liveness
// table, and drives one reap-then-scan cycle every poll interval, never
// crashing the process on a single cycle's error.
package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/tsturo/debussy/internal/audit"
	"github.com/tsturo/debussy/internal/beads"
	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/eventlog"
	"github.com/tsturo/debussy/internal/gitutil"
	"github.com/tsturo/debussy/internal/lockfile"
	"github.com/tsturo/debussy/internal/logging"
	"github.com/tsturo/debussy/internal/model"
	"github.com/tsturo/debussy/internal/namepool"
	"github.com/tsturo/debussy/internal/procutil"
	"github.com/tsturo/debussy/internal/prompts"
	"github.com/tsturo/debussy/internal/scheduler"
	"github.com/tsturo/debussy/internal/spawner"
	"github.com/tsturo/debussy/internal/tmuxutil"
	"github.com/tsturo/debussy/internal/transition"
	"github.com/tsturo/debussy/internal/worktree"
)

// DefaultSession is the tmux session every tmux-mode agent is rendered
// into.
const DefaultSession = "debussy"

// PollInterval is the default cycle period (spec.md §4.8).
const PollInterval = 5 * time.Second

// HeartbeatTicks is how often (in cycles) the watcher logs a heartbeat
// and opportunistically prunes stale worktrees/branches.
const HeartbeatTicks = 12

// AutoCloseEveryTicks is how often (in cycles) auto_close_parents runs.
const AutoCloseEveryTicks = 3

// state is the on-disk shape of watcher_state.json.
type state struct {
	Agents     map[string]*model.Agent `json:"agents"`
	Rejections map[string]int          `json:"rejections"`
}

// Watcher drives the pipeline: one PID-locked process, one in-memory
// agent table, one cycle at a time.
type Watcher struct {
	root      string
	statePath string

	tracker   beads.Tracker
	git       *gitutil.Git
	store     *config.Store
	manifest  *config.PipelineManifest
	events    *eventlog.Log
	tmux      *tmuxutil.Tmux
	worktrees *worktree.Manager
	pool      *namepool.Pool
	spawner   *spawner.Spawner
	engine    *transition.Engine
	scanner   *scheduler.Scanner

	mu                 sync.Mutex
	agents             map[string]*model.Agent // bead id -> live agent
	rejections         map[string]int
	emptyBranchRetries map[string]int
	counters           *scheduler.Counters
	tmuxCache          []string

	lock  *lockfile.Lock
	cycle int
	log   *logging.Logger
	now   func() time.Time
}

// New wires every component rooted at root (the main checkout) and loads
// any rejection counters persisted by a previous run.
func New(root, tmuxSession string) (*Watcher, error) {
	store := config.New(filepath.Join(root, ".debussy", "config.json"))
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	manifest, err := config.LoadPipelineManifest(filepath.Join(root, ".debussy", "pipeline.toml"))
	if err != nil {
		return nil, fmt.Errorf("loading pipeline manifest: %w", err)
	}

	renderer, err := prompts.New()
	if err != nil {
		return nil, fmt.Errorf("loading prompt templates: %w", err)
	}

	tracker := beads.New(root)
	git := gitutil.NewGit(root)
	events := eventlog.New(filepath.Join(root, ".debussy", "pipeline_events.jsonl"))
	tmux := tmuxutil.New(tmuxSession)
	worktrees := worktree.New(root)
	pool := namepool.New()

	w := &Watcher{
		root:               root,
		statePath:          filepath.Join(root, ".debussy", "watcher_state.json"),
		tracker:            tracker,
		git:                git,
		store:              store,
		manifest:           manifest,
		events:             events,
		tmux:               tmux,
		worktrees:          worktrees,
		pool:               pool,
		agents:             make(map[string]*model.Agent),
		rejections:         make(map[string]int),
		emptyBranchRetries: make(map[string]int),
		counters:           scheduler.NewCounters(),
		log:                logging.Default("watcher"),
		now:                time.Now,
	}

	w.spawner = spawner.New(root, worktrees, renderer, tmux, pool, store, events, w)
	w.engine = transition.New(transition.Limits{
		MaxRejections: manifest.Retry.MaxRejections,
		MaxRetries:    manifest.Retry.MaxRetries,
	})
	w.scanner = scheduler.New(tracker, git, w.spawner, w).
		WithLimits(scheduler.Limits{
			MaxRetries:        manifest.Retry.MaxRetries,
			MaxTotalSpawns:    manifest.Retry.MaxTotalSpawns,
			RejectionCooldown: time.Duration(manifest.Retry.RejectionCooldown) * time.Second,
			MaxSpawnsPerCycle: manifest.Scanner.MaxSpawnsPerCycle,
			MaxTotalAgents:    manifest.Scanner.MaxTotalAgents,
		}).
		WithBase(store.BaseBranch())

	w.loadState()
	return w, nil
}

// Add records a freshly spawned agent. Satisfies spawner.Registry.
func (w *Watcher) Add(agent *model.Agent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents[agent.Bead] = agent
	if agent.UsesTmux() {
		w.pool.MarkUsed(agent.Name)
	}
}

// ForBead returns the live agent working bead, or nil. Satisfies
// scheduler.LiveAgents.
func (w *Watcher) ForBead(beadID string) *model.Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agents[beadID]
}

// HasRole reports whether any live agent holds role. Satisfies
// scheduler.LiveAgents.
func (w *Watcher) HasRole(role model.Role) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.agents {
		if a.Role == role {
			return true
		}
	}
	return false
}

// Count returns the number of live agents. Satisfies scheduler.LiveAgents.
func (w *Watcher) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.agents)
}

func (w *Watcher) snapshot() []*model.Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a)
	}
	return out
}

func (w *Watcher) untrack(beadID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.agents[beadID]; ok {
		w.pool.Release(a.Name)
		delete(w.agents, beadID)
	}
}

// Run acquires the PID lock and drives cycles until a shutdown signal
// arrives. Only lock acquisition failure and a missing git remote are
// fatal (spec.md §7).
func (w *Watcher) Run() error {
	if !w.git.RemoteExists("origin") {
		return fmt.Errorf("no git remote 'origin' configured in %s", w.root)
	}

	lockPath := filepath.Join(w.root, ".debussy", "watcher.lock")
	lock, err := lockfile.Acquire(lockPath)
	if err != nil {
		return fmt.Errorf("acquiring watcher lock: %w", err)
	}
	w.lock = lock
	defer func() { _ = w.lock.Release() }()

	w.worktrees.PruneStale()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	w.log.Info("watcher started (pid %d)", os.Getpid())

	for {
		select {
		case sig := <-sigCh:
			w.log.Info("received %v, stopping live agents and shutting down", sig)
			w.stopAllAgents("watcher shutting down")
			return nil
		case <-ticker.C:
			w.runCycleSafely()
		}
	}
}

// runCycleSafely runs one cycle, recovering from any panic so a single
// bad cycle never takes the watcher down (spec.md §7: "the watcher never
// crashes").
func (w *Watcher) runCycleSafely() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("cycle %d panicked: %v", w.cycle, r)
		}
	}()
	w.runCycle()
}

// runCycle is the nine-step sequence from spec.md §4.8.
func (w *Watcher) runCycle() {
	w.cycle++

	if w.anyTmuxAgent() {
		w.refreshTmuxCache()
	}

	w.checkTimeouts()
	w.cleanupFinished()
	w.killOrphanWindows()

	scheduler.ResetOrphaned(w.tracker, w)

	if w.cycle%AutoCloseEveryTicks == 0 {
		scheduler.AutoCloseParents(w.tracker)
	}

	if !w.store.Paused() {
		scheduler.ReleaseReady(w.tracker)
		w.scanner.Scan(w.counters)
	}

	w.persistState()

	if w.cycle%HeartbeatTicks == 0 {
		w.heartbeat()
	}
}

func (w *Watcher) anyTmuxAgent() bool {
	for _, a := range w.snapshot() {
		if a.UsesTmux() {
			return true
		}
	}
	return false
}

func (w *Watcher) refreshTmuxCache() {
	cache, err := w.tmux.ListWindows()
	if err != nil {
		w.log.Warn("listing tmux windows: %v", err)
		return
	}
	w.tmuxCache = cache
}

// checkTimeouts stops and releases any agent older than the configured
// agent_timeout (spec.md §4.8 step 2).
func (w *Watcher) checkTimeouts() {
	timeout := time.Duration(w.store.AgentTimeoutSeconds()) * time.Second
	for _, agent := range w.snapshot() {
		if agent.Runtime(w.now()) < timeout {
			continue
		}
		w.log.Warn("agent %s (bead %s) exceeded timeout %s, stopping", agent.Name, agent.Bead, timeout)
		w.killAgent(agent)
		if err := w.tracker.Comment(agent.Bead, fmt.Sprintf("Agent %s timed out after %s.", agent.Name, timeout)); err != nil {
			w.log.Warn("commenting on %s: %v", agent.Bead, err)
		}
		if err := w.tracker.Update(agent.Bead, beads.Update{Status: model.StatusOpen}); err != nil {
			w.log.Warn("resetting %s to open after timeout: %v", agent.Bead, err)
		}
		w.events.Record(model.Event{Bead: agent.Bead, Type: model.EventTimeout, Role: agent.Role, Agent: agent.Name})
		w.releaseAgent(agent)
	}
}

// cleanupFinished reaps every tracked agent that is no longer alive,
// applying the transition engine to genuine completions and accounting
// everything else as a crash (spec.md §4.8 step 3).
func (w *Watcher) cleanupFinished() {
	for _, agent := range w.snapshot() {
		if w.isAlive(agent) {
			continue
		}

		bead, err := w.tracker.Get(agent.Bead)
		if err != nil || bead == nil {
			w.log.Warn("bead %s vanished while its agent %s was running", agent.Bead, agent.Name)
			w.releaseAgent(agent)
			continue
		}

		if w.isGenuineCompletion(agent, bead) {
			w.applyTransition(agent, bead)
			delete(w.counters.Failures, agent.Bead)
		} else {
			w.counters.Failures[agent.Bead]++
			if bead.Status == model.StatusInProgress {
				if err := w.tracker.Update(bead.ID, beads.Update{Status: model.StatusOpen}); err != nil {
					w.log.Warn("resetting crashed bead %s to open: %v", bead.ID, err)
				}
			}
		}

		w.releaseAgent(agent)
	}
}

func (w *Watcher) isAlive(agent *model.Agent) bool {
	if agent.UsesTmux() {
		return tmuxutil.WindowExists(w.tmuxCache, agent.Name)
	}
	return procutil.Alive(agent.PID)
}

func (w *Watcher) isGenuineCompletion(agent *model.Agent, bead *model.Bead) bool {
	if agent.UsesTmux() {
		return bead.Status != model.StatusInProgress
	}
	return agent.Runtime(w.now()) >= spawner.MinAgentRuntime && bead.Status != model.StatusInProgress
}

// applyTransition runs the pure engine against one finished agent and
// persists whatever mutation it decided on.
func (w *Watcher) applyTransition(agent *model.Agent, bead *model.Bead) {
	in := transition.Input{
		Agent:              agent,
		Bead:               bead,
		Rejections:         w.rejections[bead.ID],
		EmptyBranchRetries: w.emptyBranchRetries[bead.ID],
		BranchHasCommits:   w.branchHasCommits(agent, bead),
		MergeVerified:      w.mergeVerified(agent, bead),
		AuditPassed:        w.auditPassed(bead),
	}

	result := w.engine.Apply(in)

	if result.NewStatus != "" || len(result.AddLabels) > 0 || len(result.RemoveLabels) > 0 {
		if err := w.tracker.Update(bead.ID, beads.Update{
			Status:       result.NewStatus,
			AddLabels:    result.AddLabels,
			RemoveLabels: result.RemoveLabels,
		}); err != nil {
			w.log.Warn("applying transition to %s: %v", bead.ID, err)
		} else if err := beads.RepairStageLabels(w.tracker, bead.ID); err != nil {
			w.log.Warn("repairing stage labels on %s: %v", bead.ID, err)
		}
	}
	if result.Comment != "" {
		if err := w.tracker.Comment(bead.ID, result.Comment); err != nil {
			w.log.Warn("commenting on %s: %v", bead.ID, err)
		}
	}
	if result.Event != nil {
		w.events.Record(*result.Event)
	}
	if result.StartCooldown {
		w.counters.Cooldowns[bead.ID] = w.now()
	}
	if result.DeleteFeatureBranch {
		w.worktrees.DeleteClosedRemoteBranch(bead.ID)
	}

	w.rejections[bead.ID] = result.Rejections
	w.emptyBranchRetries[bead.ID] = result.EmptyBranchRetries
}

func (w *Watcher) branchHasCommits(agent *model.Agent, bead *model.Bead) bool {
	if agent.SpawnedStage != model.StageDevelopment {
		return false
	}
	base := w.store.BaseBranch()
	branch := "origin/" + worktree.FeatureBranch(bead.ID)
	n, err := w.git.CommitsAheadOfBase(branch, "origin/"+base)
	if err != nil {
		return false
	}
	return n > 0
}

func (w *Watcher) mergeVerified(agent *model.Agent, bead *model.Bead) bool {
	if agent.SpawnedStage != model.StageMerging {
		return false
	}
	base := w.store.BaseBranch()
	return w.git.IsAncestor("origin/"+worktree.FeatureBranch(bead.ID), "origin/"+base)
}

func (w *Watcher) auditPassed(bead *model.Bead) bool {
	return audit.Validate(w.events.ForBead(bead.ID), bead.IsSecurity()).Passed
}

// killOrphanWindows kills tmux windows that look like agent windows but
// have no corresponding tracked agent, so a window survives a watcher
// crash/restart only long enough to be cleaned up here (spec.md §4.8
// step 4).
func (w *Watcher) killOrphanWindows() {
	if w.tmuxCache == nil {
		return
	}

	tracked := make(map[string]bool)
	for _, a := range w.snapshot() {
		tracked[a.Name] = true
	}

	for _, name := range w.tmuxCache {
		if !looksLikeAgentWindow(name) || tracked[name] {
			continue
		}
		w.log.Warn("killing orphan tmux window %s", name)
		if err := w.tmux.KillWindow(fmt.Sprintf("%s:%s", w.tmux.Session, name)); err != nil {
			w.log.Warn("killing orphan window %s: %v", name, err)
		}
	}
}

func looksLikeAgentWindow(name string) bool {
	for _, role := range []model.Role{
		model.RoleDeveloper, model.RoleReviewer, model.RoleSecurityReviewer,
		model.RoleIntegrator, model.RoleTester, model.RoleInvestigator,
	} {
		prefix := string(role) + "-"
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (w *Watcher) heartbeat() {
	agents := w.snapshot()
	w.log.Info("heartbeat: %d active agent(s)", len(agents))
	for _, a := range agents {
		w.log.Info("  %s: bead=%s role=%s runtime=%s", a.Name, a.Bead, a.Role, a.Runtime(w.now()).Round(time.Second))
	}
	w.worktrees.PruneStale()
}

// killAgent stops the OS-level process or tmux window for agent, without
// touching tracker state.
func (w *Watcher) killAgent(agent *model.Agent) {
	if agent.UsesTmux() {
		if err := w.tmux.KillWindow(agent.TmuxWindow); err != nil {
			w.log.Warn("killing window %s: %v", agent.TmuxWindow, err)
		}
		return
	}
	if agent.PID != 0 {
		if err := procutil.Stop(agent.PID); err != nil {
			w.log.Warn("stopping pid %d: %v", agent.PID, err)
		}
	}
}

// releaseAgent tears down an agent's worktree and name and removes it
// from the live table. Tracker state is the caller's responsibility.
func (w *Watcher) releaseAgent(agent *model.Agent) {
	if agent.WorktreePath != "" {
		if err := w.worktrees.Remove(agent.WorktreePath); err != nil {
			w.log.Warn("removing worktree %s: %v", agent.WorktreePath, err)
		}
	}
	w.untrack(agent.Bead)
}

func (w *Watcher) stopAllAgents(comment string) {
	for _, agent := range w.snapshot() {
		w.killAgent(agent)
		if err := w.tracker.Comment(agent.Bead, comment); err != nil {
			w.log.Warn("commenting on %s: %v", agent.Bead, err)
		}
		if err := w.tracker.Update(agent.Bead, beads.Update{Status: model.StatusOpen}); err != nil {
			w.log.Warn("resetting %s to open on shutdown: %v", agent.Bead, err)
		}
		w.releaseAgent(agent)
	}
	w.persistState()
}

func (w *Watcher) persistState() {
	st := state{
		Agents:     make(map[string]*model.Agent),
		Rejections: make(map[string]int),
	}
	for _, a := range w.snapshot() {
		st.Agents[a.Bead] = a
	}
	w.mu.Lock()
	for k, v := range w.rejections {
		st.Rejections[k] = v
	}
	w.mu.Unlock()

	if err := config.AtomicWriteJSON(w.statePath, st); err != nil {
		w.log.Warn("persisting watcher state: %v", err)
	}
}

// loadState restores only the rejections counter from a previous run;
// per spec.md §9 every other counter is fresh each run, and live agents
// are never trusted across a restart (reset_orphaned reclaims their
// beads on the first cycle instead).
func (w *Watcher) loadState() {
	data, err := os.ReadFile(w.statePath)
	if err != nil {
		return
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		w.log.Warn("parsing %s: %v", w.statePath, err)
		return
	}
	if st.Rejections != nil {
		w.rejections = st.Rejections
	}
}
