package spawner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/eventlog"
	"github.com/tsturo/debussy/internal/model"
	"github.com/tsturo/debussy/internal/namepool"
	"github.com/tsturo/debussy/internal/prompts"
	"github.com/tsturo/debussy/internal/tmuxutil"
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

type fakeRegistry struct {
	added []*model.Agent
}

func (r *fakeRegistry) Add(a *model.Agent) { r.added = append(r.added, a) }

func newTestSpawner(t *testing.T, root string, registry Registry) *Spawner {
	t.Helper()

	renderer, err := prompts.New()
	if err != nil {
		t.Fatalf("prompts.New: %v", err)
	}

	store := config.New(filepath.Join(root, ".debussy", "config.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	if err := store.SetBaseBranch("main"); err != nil {
		t.Fatalf("SetBaseBranch: %v", err)
	}
	if err := store.SetAgentProvider("echo"); err != nil {
		t.Fatalf("SetAgentProvider: %v", err)
	}

	events := eventlog.New(filepath.Join(root, ".debussy", "pipeline_events.jsonl"))
	wt := worktree.New(root)
	tmux := tmuxutil.New("debussy-test")

	s := New(root, wt, renderer, tmux, namepool.New(), store, events, registry)
	s.now = func() time.Time { return time.Unix(0, 0) }
	return s
}

func TestSpawnDeveloperBackgroundMode(t *testing.T) {
	root := setupRepo(t)
	registry := &fakeRegistry{}
	s := newTestSpawner(t, root, registry)

	bead := &model.Bead{ID: "bd-001", Labels: []string{model.StageLabel(model.StageDevelopment)}}
	if err := s.Spawn(bead, model.RoleDeveloper, model.StageDevelopment); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if len(registry.added) != 1 {
		t.Fatalf("expected 1 agent registered, got %d", len(registry.added))
	}
	agent := registry.added[0]
	if agent.WorktreePath == "" {
		t.Fatalf("expected developer agent to have a worktree")
	}
	if agent.PID == 0 {
		t.Fatalf("expected a PID for background-mode agent")
	}
	if _, err := os.Stat(agent.LogPath); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}

	events := eventlog.New(filepath.Join(root, ".debussy", "pipeline_events.jsonl")).ForBead("bd-001")
	if len(events) != 1 || events[0].Type != model.EventSpawn {
		t.Fatalf("expected a spawn event, got %+v", events)
	}
}

func TestSpawnBackgroundModePassesFlagsAndEnv(t *testing.T) {
	root := setupRepo(t)
	registry := &fakeRegistry{}
	s := newTestSpawner(t, root, registry)

	logScript := filepath.Join(root, "log-argv.sh")
	script := "#!/bin/sh\necho \"$@\" > " + filepath.Join(root, "argv.txt") + "\nenv | grep ^DEBUSSY_ > " + filepath.Join(root, "env.txt") + "\n"
	if err := os.WriteFile(logScript, []byte(script), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := s.store.SetAgentProvider(logScript); err != nil {
		t.Fatalf("SetAgentProvider: %v", err)
	}

	bead := &model.Bead{ID: "bd-010", Labels: []string{model.StageLabel(model.StageDevelopment)}}
	if err := s.Spawn(bead, model.RoleDeveloper, model.StageDevelopment); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Give the background process a moment to finish writing before we
	// read the files it produced.
	time.Sleep(200 * time.Millisecond)

	argv, err := os.ReadFile(filepath.Join(root, "argv.txt"))
	if err != nil {
		t.Fatalf("reading argv.txt: %v", err)
	}
	if !strings.Contains(string(argv), "--dangerously-skip-permissions") {
		t.Fatalf("expected --dangerously-skip-permissions in argv, got %q", argv)
	}
	if !strings.Contains(string(argv), "--print") {
		t.Fatalf("expected --print in argv, got %q", argv)
	}

	env, err := os.ReadFile(filepath.Join(root, "env.txt"))
	if err != nil {
		t.Fatalf("reading env.txt: %v", err)
	}
	if !strings.Contains(string(env), "DEBUSSY_ROLE=developer") {
		t.Fatalf("expected DEBUSSY_ROLE=developer in env, got %q", env)
	}
	if !strings.Contains(string(env), "DEBUSSY_BEAD=bd-010") {
		t.Fatalf("expected DEBUSSY_BEAD=bd-010 in env, got %q", env)
	}
}

func TestSpawnInvestigatorRunsInMainCheckout(t *testing.T) {
	root := setupRepo(t)
	registry := &fakeRegistry{}
	s := newTestSpawner(t, root, registry)

	bead := &model.Bead{ID: "bd-002"}
	if err := s.Spawn(bead, model.RoleInvestigator, model.StageInvestigating); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	agent := registry.added[0]
	if agent.WorktreePath != "" {
		t.Fatalf("expected investigator to have no worktree, got %q", agent.WorktreePath)
	}
}

func TestSpawnRollsBackWorktreeOnLaunchFailure(t *testing.T) {
	root := setupRepo(t)
	registry := &fakeRegistry{}
	s := newTestSpawner(t, root, registry)
	if err := s.store.SetAgentProvider("/nonexistent/not-a-real-binary"); err != nil {
		t.Fatalf("SetAgentProvider: %v", err)
	}

	bead := &model.Bead{ID: "bd-003", Labels: []string{model.StageLabel(model.StageDevelopment)}}
	if err := s.Spawn(bead, model.RoleDeveloper, model.StageDevelopment); err == nil {
		t.Fatalf("expected Spawn to fail with a nonexistent agent binary")
	}

	if len(registry.added) != 0 {
		t.Fatalf("expected no agent registered on failure")
	}
	if s.pool.InUse("developer-" + namepool.Composers[0]) {
		t.Fatalf("expected allocated name to be released on rollback")
	}
}
