// Package scheduler implements the pipeline scanner (spec.md §4.6): for
// each stage, list eligible open beads and decide launch/skip/queue/block
// per a fixed rule order, then hand launches to a Spawner.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/tsturo/debussy/internal/beads"
	"github.com/tsturo/debussy/internal/gitutil"
	"github.com/tsturo/debussy/internal/logging"
	"github.com/tsturo/debussy/internal/model"
)

// Spawner launches an agent for a bead at a stage. Implemented by
// internal/spawner.Spawner; kept as an interface here so the scanner's
// decision logic is testable without a real worktree/tmux/process stack.
type Spawner interface {
	Spawn(bead *model.Bead, role model.Role, stage model.Stage) error
}

// LiveAgents answers the questions the scanner needs about the watcher's
// in-memory agent table, without the scheduler importing the watcher.
type LiveAgents interface {
	ForBead(beadID string) *model.Agent
	HasRole(role model.Role) bool
	Count() int
}

// Limits bounds the scanner's per-cycle and per-bead behavior.
type Limits struct {
	MaxRetries        int
	MaxTotalSpawns    int
	RejectionCooldown time.Duration
	MaxSpawnsPerCycle int
	MaxTotalAgents    int
}

// DefaultLimits mirrors spec.md §3/§4.6/§4.8's hardcoded defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxRetries: 3, MaxTotalSpawns: 20,
		RejectionCooldown: 60 * time.Second,
		MaxSpawnsPerCycle: 2, MaxTotalAgents: 8,
	}
}

// Counters are the scanner's mutable, process-local bookkeeping (spec.md
// §9: "owned by the single Watcher instance", all reset on restart
// except rejections, which the watcher keeps separately and persists).
type Counters struct {
	Failures    map[string]int
	SpawnCounts map[string]int
	Cooldowns   map[string]time.Time
}

// NewCounters creates an empty Counters.
func NewCounters() *Counters {
	return &Counters{
		Failures:    make(map[string]int),
		SpawnCounts: make(map[string]int),
		Cooldowns:   make(map[string]time.Time),
	}
}

// Outcome classifies what the scanner did with one bead.
type Outcome string

const (
	OutcomeLaunched Outcome = "launched"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeQueued   Outcome = "queued"
	OutcomeBlocked  Outcome = "blocked"
)

// Decision records one bead's outcome for the cycle's report.
type Decision struct {
	Bead    string
	Stage   model.Stage
	Outcome Outcome
	Reason  string
}

// Result summarizes one Scan call.
type Result struct {
	Decisions []Decision
}

// Scanner is configured fluently via its With* methods.
type Scanner struct {
	tracker beads.Tracker
	git     *gitutil.Git
	spawner Spawner
	live    LiveAgents
	limits  Limits
	base    string
	now     func() time.Time
	log     *logging.Logger
}

// New creates a Scanner with sane defaults; configure further with
// With* methods before calling Scan.
func New(tracker beads.Tracker, git *gitutil.Git, spawner Spawner, live LiveAgents) *Scanner {
	return &Scanner{
		tracker: tracker,
		git:     git,
		spawner: spawner,
		live:    live,
		limits:  DefaultLimits(),
		now:     time.Now,
		log:     logging.Default("scheduler"),
	}
}

// WithLimits overrides the default limits.
func (s *Scanner) WithLimits(l Limits) *Scanner {
	s.limits = l
	return s
}

// WithBase sets the base branch used for dependency/merge checks.
func (s *Scanner) WithBase(base string) *Scanner {
	s.base = base
	return s
}

// WithClock overrides the time source (tests only).
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan walks every stage in the pipeline order, applying the decision
// chain to each eligible bead, launching up to MaxSpawnsPerCycle agents.
func (s *Scanner) Scan(counters *Counters) *Result {
	result := &Result{}
	launches := 0

	for _, stage := range model.AllStages {
		if launches >= s.limits.MaxSpawnsPerCycle {
			break
		}

		beadsAtStage := s.tracker.List(model.StatusOpen, model.StageLabel(stage))
		sortBugsFirst(beadsAtStage)

		for _, bead := range beadsAtStage {
			if launches >= s.limits.MaxSpawnsPerCycle {
				break
			}
			decision := s.decide(bead, stage, counters)
			result.Decisions = append(result.Decisions, decision)
			if decision.Outcome == OutcomeLaunched {
				launches++
			}
		}
	}

	return result
}

func sortBugsFirst(b []*model.Bead) {
	sort.SliceStable(b, func(i, j int) bool {
		return b[i].IssueType == "bug" && b[j].IssueType != "bug"
	})
}

func (s *Scanner) decide(bead *model.Bead, stage model.Stage, counters *Counters) Decision {
	role := model.RoleForStage(stage)

	if s.live.ForBead(bead.ID) != nil {
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeSkipped, Reason: "already running"}
	}

	if until, ok := counters.Cooldowns[bead.ID]; ok && s.now().Sub(until) < s.limits.RejectionCooldown {
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeSkipped, Reason: "rejection cooldown"}
	}

	if counters.Failures[bead.ID] >= s.limits.MaxRetries {
		s.block(bead, fmt.Sprintf("Blocked after %d crashes — needs conductor", s.limits.MaxRetries))
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeBlocked, Reason: "max retries exceeded"}
	}

	if counters.SpawnCounts[bead.ID] >= s.limits.MaxTotalSpawns {
		s.block(bead, fmt.Sprintf("Blocked after %d total spawns — needs conductor", s.limits.MaxTotalSpawns))
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeBlocked, Reason: "max total spawns exceeded"}
	}

	if bead.Status == model.StatusBlocked {
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeSkipped, Reason: "blocked"}
	}

	if unresolved := s.tracker.UnresolvedDeps(bead); len(unresolved) > 0 {
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeSkipped, Reason: "unresolved dependencies"}
	}

	if role == model.RoleTester && s.dependencyBranchesStillOpen(bead) {
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeQueued, Reason: "dependency not yet merged"}
	}

	if role == model.RoleIntegrator && s.live.HasRole(model.RoleIntegrator) {
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeQueued, Reason: "integrator is a singleton"}
	}

	if s.live.Count() >= s.limits.MaxTotalAgents {
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeQueued, Reason: "max total agents reached"}
	}

	if err := s.spawner.Spawn(bead, role, stage); err != nil {
		s.log.Warn("spawn failed for %s at %s: %v", bead.ID, stage, err)
		counters.Failures[bead.ID]++
		return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeSkipped, Reason: "spawn failed: " + err.Error()}
	}

	counters.SpawnCounts[bead.ID]++
	return Decision{Bead: bead.ID, Stage: stage, Outcome: OutcomeLaunched}
}

func (s *Scanner) block(bead *model.Bead, comment string) {
	err := s.tracker.Update(bead.ID, beads.Update{Status: model.StatusBlocked, RemoveLabels: bead.StageLabels()})
	if err != nil {
		s.log.Warn("blocking %s: %v", bead.ID, err)
		return
	}
	if err := s.tracker.Comment(bead.ID, comment); err != nil {
		s.log.Warn("commenting on %s: %v", bead.ID, err)
	}
}

// dependencyBranchesStillOpen reports whether any dependency of bead
// still has a feature branch on origin, meaning it hasn't been merged in
// yet even though the tracker shows it closed.
func (s *Scanner) dependencyBranchesStillOpen(bead *model.Bead) bool {
	for _, dep := range bead.Dependencies {
		if s.git.RemoteBranchExists("origin", "feature/"+dep.ID) {
			return true
		}
	}
	return false
}

// ReleaseReady promotes blocked beads whose dependencies have just
// resolved back to open, giving them a development stage if they
// currently carry none.
func ReleaseReady(tracker beads.Tracker) int {
	released := 0
	for _, bead := range tracker.List(model.StatusBlocked, "") {
		if len(tracker.UnresolvedDeps(bead)) > 0 {
			continue
		}

		update := beads.Update{Status: model.StatusOpen}
		if bead.Stage() == "" {
			update.AddLabels = []string{model.StageLabel(model.StageDevelopment)}
		}
		if err := tracker.Update(bead.ID, update); err != nil {
			continue
		}
		_ = beads.RepairStageLabels(tracker, bead.ID)
		released++
	}
	return released
}

// ResetOrphaned restores stage-labelled beads stuck in_progress with no
// corresponding live agent back to open, so the scanner can pick them up
// again. This covers a watcher crash or an agent the watcher lost track
// of.
func ResetOrphaned(tracker beads.Tracker, live LiveAgents) int {
	reset := 0
	for _, bead := range tracker.List(model.StatusInProgress, "") {
		if len(bead.StageLabels()) == 0 {
			continue
		}
		if live.ForBead(bead.ID) != nil {
			continue
		}
		if err := tracker.Update(bead.ID, beads.Update{Status: model.StatusOpen}); err != nil {
			continue
		}
		reset++
	}
	return reset
}

// AutoCloseParents closes a parent bead once every child referencing it
// is closed.
func AutoCloseParents(tracker beads.Tracker) int {
	all := tracker.ListAll()

	childrenByParent := make(map[string][]*model.Bead)
	byID := make(map[string]*model.Bead)
	for _, b := range all {
		byID[b.ID] = b
		if b.ParentID != "" {
			childrenByParent[b.ParentID] = append(childrenByParent[b.ParentID], b)
		}
	}

	closed := 0
	for parentID, children := range childrenByParent {
		parent, ok := byID[parentID]
		if !ok || parent.Status == model.StatusClosed {
			continue
		}
		allClosed := true
		for _, c := range children {
			if c.Status != model.StatusClosed {
				allClosed = false
				break
			}
		}
		if !allClosed {
			continue
		}
		if err := tracker.Update(parentID, beads.Update{Status: model.StatusClosed}); err != nil {
			continue
		}
		closed++
	}
	return closed
}
