package watcher

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/tsturo/debussy/internal/beads"
	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/eventlog"
	"github.com/tsturo/debussy/internal/gitutil"
	"github.com/tsturo/debussy/internal/logging"
	"github.com/tsturo/debussy/internal/model"
	"github.com/tsturo/debussy/internal/namepool"
	"github.com/tsturo/debussy/internal/scheduler"
	"github.com/tsturo/debussy/internal/transition"
	"github.com/tsturo/debussy/internal/worktree"
)

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// setupRepo creates a bare origin plus a clone with one commit on main,
// mirroring the git fixture already used by internal/scheduler and
// internal/worktree's tests.
func setupRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	origin := filepath.Join(root, "origin.git")
	main := filepath.Join(root, "main")

	run(t, root, "init", "--bare", origin)
	run(t, root, "clone", origin, main)
	run(t, main, "config", "user.email", "test@test.com")
	run(t, main, "config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(main, "README.md"), []byte("# test\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	run(t, main, "add", ".")
	run(t, main, "commit", "-m", "initial")
	run(t, main, "branch", "-M", "main")
	run(t, main, "push", "origin", "main")

	return main
}

// pushFeatureBranch creates feature/<beadID> off main, optionally with
// an extra commit, and pushes it to origin.
func pushFeatureBranch(t *testing.T, repo, beadID string, withCommit bool) {
	t.Helper()
	branch := worktree.FeatureBranch(beadID)
	run(t, repo, "checkout", "-b", branch, "main")
	if withCommit {
		if err := os.WriteFile(filepath.Join(repo, beadID+".txt"), []byte("work\n"), 0644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		run(t, repo, "add", ".")
		run(t, repo, "commit", "-m", "work on "+beadID)
	}
	run(t, repo, "push", "origin", branch)
	run(t, repo, "checkout", "main")
}

// setpgid starts a child in its own process group, mirroring the
// spawner's background-mode launch, so procutil.Stop can be exercised
// the same way the watcher uses it.
func setpgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

type fakeSpawner struct {
	calls []string
}

func (f *fakeSpawner) Spawn(bead *model.Bead, role model.Role, stage model.Stage) error {
	f.calls = append(f.calls, bead.ID)
	return nil
}

// writeConfig seeds .debussy/config.json before the Store loads it, for
// settings (like agent_timeout) the Store has no in-package setter for.
func writeConfig(t *testing.T, repo, json string) {
	t.Helper()
	dir := filepath.Join(repo, ".debussy")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir .debussy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(json), 0644); err != nil {
		t.Fatalf("writing config.json: %v", err)
	}
}

func newTestWatcher(t *testing.T, repo string) (*Watcher, *beads.Fake, *fakeSpawner) {
	t.Helper()

	store := config.New(filepath.Join(repo, ".debussy", "config.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	if err := store.SetBaseBranch("main"); err != nil {
		t.Fatalf("SetBaseBranch: %v", err)
	}

	tracker := beads.NewFake()
	git := gitutil.NewGit(repo)
	events := eventlog.New(filepath.Join(repo, ".debussy", "pipeline_events.jsonl"))
	worktrees := worktree.New(repo)
	spawner := &fakeSpawner{}

	w := &Watcher{
		root:               repo,
		statePath:          filepath.Join(repo, ".debussy", "watcher_state.json"),
		tracker:            tracker,
		git:                git,
		store:              store,
		events:             events,
		worktrees:          worktrees,
		pool:               namepool.New(),
		agents:             make(map[string]*model.Agent),
		rejections:         make(map[string]int),
		emptyBranchRetries: make(map[string]int),
		counters:           scheduler.NewCounters(),
		log:                logging.Default("watcher-test"),
		now:                time.Now,
	}
	w.engine = transition.New(transition.DefaultLimits())
	w.scanner = scheduler.New(tracker, git, spawner, w).WithBase("main")

	return w, tracker, spawner
}

func TestCheckTimeoutsStopsAndResetsAgent(t *testing.T) {
	repo := setupRepo(t)
	writeConfig(t, repo, `{"agent_timeout":1}`)
	w, tracker, _ := newTestWatcher(t, repo)

	tracker.Put(model.Bead{ID: "bd-001", Status: model.StatusInProgress, Labels: []string{model.StageLabel(model.StageDevelopment)}})

	cmd := exec.Command("sleep", "30")
	setpgid(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	defer func() { _ = cmd.Process.Kill(); _, _ = cmd.Process.Wait() }()

	agent := &model.Agent{
		Bead:         "bd-001",
		Role:         model.RoleDeveloper,
		Name:         "developer-test",
		SpawnedStage: model.StageDevelopment,
		StartedAt:    time.Now().Add(-2 * time.Second),
		PID:          cmd.Process.Pid,
	}
	w.Add(agent)

	w.checkTimeouts()

	if w.ForBead("bd-001") != nil {
		t.Fatalf("expected timed-out agent to be untracked")
	}

	bead, _ := tracker.Get("bd-001")
	if bead.Status != model.StatusOpen {
		t.Fatalf("expected bead reset to open, got %s", bead.Status)
	}

	events := w.events.ForBead("bd-001")
	if len(events) != 1 || events[0].Type != model.EventTimeout {
		t.Fatalf("expected one timeout event, got %+v", events)
	}
}

func TestCleanupFinishedAdvancesGenuineCompletion(t *testing.T) {
	repo := setupRepo(t)
	w, tracker, _ := newTestWatcher(t, repo)
	pushFeatureBranch(t, repo, "bd-010", true)
	run(t, repo, "fetch", "origin")

	tracker.Put(model.Bead{ID: "bd-010", Status: model.StatusOpen, Labels: []string{model.StageLabel(model.StageDevelopment)}})

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("running true: %v", err)
	}

	agent := &model.Agent{
		Bead:         "bd-010",
		Role:         model.RoleDeveloper,
		Name:         "developer-test",
		SpawnedStage: model.StageDevelopment,
		StartedAt:    time.Now().Add(-time.Minute),
		PID:          cmd.Process.Pid,
	}
	w.Add(agent)

	w.cleanupFinished()

	if w.ForBead("bd-010") != nil {
		t.Fatalf("expected finished agent to be untracked")
	}

	bead, _ := tracker.Get("bd-010")
	if bead.Stage() != model.StageReviewing {
		t.Fatalf("expected bead advanced to reviewing, got stage %q labels %v", bead.Stage(), bead.Labels)
	}

	events := w.events.ForBead("bd-010")
	if len(events) != 1 || events[0].Type != model.EventAdvance {
		t.Fatalf("expected one advance event, got %+v", events)
	}
}

func TestCleanupFinishedClosesMergedBead(t *testing.T) {
	repo := setupRepo(t)
	w, tracker, _ := newTestWatcher(t, repo)
	pushFeatureBranch(t, repo, "bd-020", true)
	run(t, repo, "checkout", "main")
	run(t, repo, "merge", "--no-ff", "-m", "merge", worktree.FeatureBranch("bd-020"))
	run(t, repo, "push", "origin", "main")
	run(t, repo, "fetch", "origin")

	tracker.Put(model.Bead{ID: "bd-020", Status: model.StatusClosed, Labels: []string{model.StageLabel(model.StageMerging)}})

	w.events.Record(model.Event{Bead: "bd-020", Type: model.EventAdvance, From: model.StageDevelopment, To: model.StageReviewing})
	w.events.Record(model.Event{Bead: "bd-020", Type: model.EventAdvance, From: model.StageReviewing, To: model.StageMerging})

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("running true: %v", err)
	}

	agent := &model.Agent{
		Bead:         "bd-020",
		Role:         model.RoleIntegrator,
		Name:         "integrator-test",
		SpawnedStage: model.StageMerging,
		StartedAt:    time.Now().Add(-time.Minute),
		PID:          cmd.Process.Pid,
	}
	w.Add(agent)

	w.cleanupFinished()

	bead, _ := tracker.Get("bd-020")
	if bead.Stage() != "" {
		t.Fatalf("expected stage label removed on close, got %q", bead.Stage())
	}

	events := w.events.ForBead("bd-020")
	last := events[len(events)-1]
	if last.Type != model.EventClose {
		t.Fatalf("expected a close event, got %+v", last)
	}
}

func TestCleanupFinishedAccountsCrashAsFailure(t *testing.T) {
	repo := setupRepo(t)
	w, tracker, _ := newTestWatcher(t, repo)

	tracker.Put(model.Bead{ID: "bd-030", Status: model.StatusInProgress, Labels: []string{model.StageLabel(model.StageDevelopment)}})

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("running true: %v", err)
	}

	agent := &model.Agent{
		Bead:         "bd-030",
		Role:         model.RoleDeveloper,
		Name:         "developer-test",
		SpawnedStage: model.StageDevelopment,
		StartedAt:    time.Now().Add(-time.Minute),
		PID:          cmd.Process.Pid,
	}
	w.Add(agent)

	w.cleanupFinished()

	if got := w.counters.Failures["bd-030"]; got != 1 {
		t.Fatalf("expected one recorded failure, got %d", got)
	}
	bead, _ := tracker.Get("bd-030")
	if bead.Status != model.StatusOpen {
		t.Fatalf("expected crashed bead reset to open, got %s", bead.Status)
	}
}

func TestCleanupFinishedCountsExitYoungerThanMinRuntimeAsCrash(t *testing.T) {
	repo := setupRepo(t)
	w, tracker, _ := newTestWatcher(t, repo)

	tracker.Put(model.Bead{ID: "bd-040", Status: model.StatusOpen, Labels: []string{model.StageLabel(model.StageDevelopment)}})

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("running true: %v", err)
	}

	agent := &model.Agent{
		Bead:         "bd-040",
		Role:         model.RoleDeveloper,
		Name:         "developer-test",
		SpawnedStage: model.StageDevelopment,
		StartedAt:    time.Now(),
		PID:          cmd.Process.Pid,
	}
	w.Add(agent)

	w.cleanupFinished()

	if got := w.counters.Failures["bd-040"]; got != 1 {
		t.Fatalf("expected a too-young exit to count as a crash, got %d", got)
	}
}

func TestScanGatedByPaused(t *testing.T) {
	repo := setupRepo(t)
	w, tracker, spawner := newTestWatcher(t, repo)
	if err := w.store.SetPaused(true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}

	tracker.Put(model.Bead{ID: "bd-050", Status: model.StatusOpen, Labels: []string{model.StageLabel(model.StageDevelopment)}})

	w.runCycle()

	if len(spawner.calls) != 0 {
		t.Fatalf("expected no spawns while paused, got %v", spawner.calls)
	}
}

func TestScanLaunchesWhenNotPaused(t *testing.T) {
	repo := setupRepo(t)
	w, tracker, spawner := newTestWatcher(t, repo)

	tracker.Put(model.Bead{ID: "bd-060", Status: model.StatusOpen, Labels: []string{model.StageLabel(model.StageDevelopment)}})

	w.runCycle()

	if len(spawner.calls) != 1 || spawner.calls[0] != "bd-060" {
		t.Fatalf("expected a spawn for bd-060, got %v", spawner.calls)
	}
}

func TestPersistStateRoundTripsRejections(t *testing.T) {
	repo := setupRepo(t)
	w, _, _ := newTestWatcher(t, repo)
	if err := os.MkdirAll(filepath.Dir(w.statePath), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w.rejections["bd-070"] = 2
	w.persistState()

	w2, _, _ := newTestWatcher(t, repo)
	w2.loadState()

	if got := w2.rejections["bd-070"]; got != 2 {
		t.Fatalf("expected rejections to survive a reload, got %d", got)
	}
}

func TestAutoCloseParentsRunsEveryThirdCycle(t *testing.T) {
	repo := setupRepo(t)
	w, tracker, _ := newTestWatcher(t, repo)
	if err := w.store.SetPaused(true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}

	tracker.Put(model.Bead{ID: "bd-parent", Status: model.StatusOpen})
	tracker.Put(model.Bead{ID: "bd-child", Status: model.StatusClosed, ParentID: "bd-parent"})

	w.runCycle()
	w.runCycle()
	parent, _ := tracker.Get("bd-parent")
	if parent.Status == model.StatusClosed {
		t.Fatalf("expected parent to remain open before the third cycle")
	}

	w.runCycle()
	parent, _ = tracker.Get("bd-parent")
	if parent.Status != model.StatusClosed {
		t.Fatalf("expected parent auto-closed on the third cycle, got %s", parent.Status)
	}
}
