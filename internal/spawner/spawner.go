// Package spawner implements the last stage of the scanner's decision
// chain (spec.md §4.7): allocate a name, create the worktree, render
// the role prompt, launch the agent either as a tmux window or a
// detached background process, and record a spawn event — rolling back
// the name and worktree on any failure along the way.
package spawner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tsturo/debussy/internal/config"
	"github.com/tsturo/debussy/internal/eventlog"
	"github.com/tsturo/debussy/internal/logging"
	"github.com/tsturo/debussy/internal/model"
	"github.com/tsturo/debussy/internal/namepool"
	"github.com/tsturo/debussy/internal/prompts"
	"github.com/tsturo/debussy/internal/tmuxutil"
	"github.com/tsturo/debussy/internal/worktree"
)

// StartupDelay is how long the tmux-mode launch waits between creating
// the window and pasting the prompt, so the agent CLI has finished its
// own startup banner.
const StartupDelay = 3 * time.Second

// MinAgentRuntime is how long a background-mode agent must have run
// before the watcher will treat its exit as a completion rather than an
// immediate crash (spec.md §4.8 step 3).
const MinAgentRuntime = 30 * time.Second

// Registry is where a freshly spawned agent gets recorded so the
// watcher's liveness table and the scheduler's LiveAgents view see it
// immediately, without the spawner importing the watcher package.
type Registry interface {
	Add(agent *model.Agent)
}

// Spawner wires together every component a launch touches.
type Spawner struct {
	root      string // main checkout root; investigator agents run here
	worktrees *worktree.Manager
	prompts   *prompts.Renderer
	tmux      *tmuxutil.Tmux
	pool      *namepool.Pool
	store     *config.Store
	events    *eventlog.Log
	registry  Registry
	log       *logging.Logger
	now       func() time.Time
}

// New creates a Spawner rooted at the main checkout.
func New(root string, worktrees *worktree.Manager, renderer *prompts.Renderer, tmux *tmuxutil.Tmux, pool *namepool.Pool, store *config.Store, events *eventlog.Log, registry Registry) *Spawner {
	return &Spawner{
		root:      root,
		worktrees: worktrees,
		prompts:   renderer,
		tmux:      tmux,
		pool:      pool,
		store:     store,
		events:    events,
		registry:  registry,
		log:       logging.Default("spawner"),
		now:       time.Now,
	}
}

// Spawn launches an agent for bead at stage in role. It satisfies
// scheduler.Spawner.
func (s *Spawner) Spawn(bead *model.Bead, role model.Role, stage model.Stage) error {
	base := s.store.BaseBranch()
	name := s.pool.Allocate(string(role))

	var worktreePath string
	if role != model.RoleInvestigator {
		path, err := s.worktrees.Create(role, name, bead.ID, base)
		if err != nil {
			s.pool.Release(name)
			return fmt.Errorf("creating worktree for %s: %w", name, err)
		}
		worktreePath = path
	}

	dir := worktreePath
	if dir == "" {
		dir = s.root
	}

	prompt, err := s.prompts.Render(role, prompts.Data{BeadID: bead.ID, Base: base, Stage: stage, Labels: bead.Labels})
	if err != nil {
		s.rollback(name, worktreePath)
		return fmt.Errorf("rendering prompt for %s: %w", name, err)
	}

	agent := &model.Agent{
		Bead:         bead.ID,
		Role:         role,
		Name:         name,
		SpawnedStage: stage,
		StartedAt:    s.now(),
		WorktreePath: worktreePath,
	}

	if s.store.UseTmuxWindows() {
		if err := s.launchTmux(name, dir, prompt, agent); err != nil {
			s.rollback(name, worktreePath)
			return err
		}
	} else {
		if err := s.launchBackground(name, dir, prompt, agent); err != nil {
			s.rollback(name, worktreePath)
			return err
		}
	}

	s.events.Record(model.Event{Bead: bead.ID, Type: model.EventSpawn, Role: role, Agent: name})
	s.registry.Add(agent)
	return nil
}

// agentFlags builds the fixed agent CLI flag set spec.md §6 names:
// --dangerously-skip-permissions [--model <m>], ahead of whatever each
// launch mode appends (--print <prompt> for background mode, nothing
// for tmux mode since the prompt is pasted in interactively instead).
func agentFlags(model string) []string {
	flags := []string{"--dangerously-skip-permissions"}
	if model != "" {
		flags = append(flags, "--model", model)
	}
	return flags
}

// agentEnv is the fixed environment spec.md §6 exports to every agent.
func agentEnv(agent *model.Agent) map[string]string {
	return map[string]string{
		"DEBUSSY_ROLE": string(agent.Role),
		"DEBUSSY_BEAD": agent.Bead,
	}
}

func (s *Spawner) launchTmux(name, dir, prompt string, agent *model.Agent) error {
	provider := s.store.AgentProvider()
	flags := agentFlags(s.store.ModelForRole(string(agent.Role)))
	command := strings.Join(append([]string{provider}, flags...), " ")

	window, err := s.tmux.NewWindow(name, dir, agentEnv(agent), command)
	if err != nil {
		return fmt.Errorf("starting tmux window for %s: %w", name, err)
	}

	time.Sleep(StartupDelay)

	if err := s.tmux.SendKeys(window, prompt); err != nil {
		_ = s.tmux.KillWindow(window)
		return fmt.Errorf("pasting prompt into %s: %w", window, err)
	}

	agent.TmuxWindow = window
	return nil
}

func (s *Spawner) launchBackground(name, dir, prompt string, agent *model.Agent) error {
	logPath := filepath.Join(s.root, ".debussy", "logs", name+".log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("creating log file for %s: %w", name, err)
	}

	provider := s.store.AgentProvider()
	flags := agentFlags(s.store.ModelForRole(string(agent.Role)))
	args := append(flags, "--print", prompt)
	cmd := exec.Command(provider, args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "DEBUSSY_ROLE="+string(agent.Role), "DEBUSSY_BEAD="+agent.Bead)
	// Its own process group, so internal/procutil can terminate any
	// subprocess the agent CLI spawns along with it on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("starting %s for %s: %w", provider, name, err)
	}

	go func() {
		_ = cmd.Wait()
		logFile.Close()
	}()

	agent.PID = cmd.Process.Pid
	agent.LogPath = logPath
	return nil
}

// rollback releases the allocated name and tears down any worktree
// created before the failure, per spec.md §4.7's "on any spawn failure
// the used-name is released ... and the worktree is torn down."
func (s *Spawner) rollback(name, worktreePath string) {
	s.pool.Release(name)
	if worktreePath == "" {
		return
	}
	if err := s.worktrees.Remove(worktreePath); err != nil {
		s.log.Warn("rolling back worktree %s after failed spawn: %v", worktreePath, err)
	}
}
