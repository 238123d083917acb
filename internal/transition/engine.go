// Package transition implements the pure stage-transition engine
// described in spec.md §4.5: a deterministic function from an agent's
// post-run observation to a tracker mutation. No package in this module
// shells out to bd or git from here — every fact the engine needs
// (branch-has-commits, merge-verified, audit-passed, current counters)
// is passed in by the caller, so the same Input always yields the same
// Result (spec.md §8's idempotence property).
package transition

import (
	"fmt"

	"github.com/tsturo/debussy/internal/model"
)

// Limits bounds the retry budgets the engine enforces. Populated from
// config.PipelineManifest.Retry by the watcher at startup.
type Limits struct {
	MaxRejections int
	MaxRetries    int
}

// DefaultLimits mirrors spec.md §3/§7's hardcoded defaults.
func DefaultLimits() Limits {
	return Limits{MaxRejections: 5, MaxRetries: 3}
}

// Input is everything the engine needs to decide one transition.
type Input struct {
	Agent *model.Agent
	Bead  *model.Bead

	// Rejections and EmptyBranchRetries are the counters' values before
	// this call; the engine returns the updated values for the caller to
	// persist (counters are owned by the watcher, per spec.md §9).
	Rejections         int
	EmptyBranchRetries int

	// BranchHasCommits reports whether origin/feature/<bead> has commits
	// past base; only consulted when Agent.SpawnedStage is development.
	BranchHasCommits bool

	// MergeVerified reports whether the feature branch is an ancestor of
	// origin/<base>; only consulted when Agent.SpawnedStage is merging.
	MergeVerified bool

	// AuditPassed reports whether validate_bead_pipeline found every
	// required stage completed; only consulted when Agent.SpawnedStage
	// is merging and the bead is closing successfully.
	AuditPassed bool
}

// Result is the tracker mutation (and bookkeeping) the engine decided on.
type Result struct {
	// NewStatus is "" when the bead's status should not change.
	NewStatus    model.Status
	AddLabels    []string
	RemoveLabels []string
	Comment      string

	// Event is nil when nothing should be appended to the event log.
	Event *model.Event

	// Updated counter values the caller must persist.
	Rejections         int
	EmptyBranchRetries int

	// StartCooldown tells the caller to record cooldowns[bead] = now.
	StartCooldown bool

	// DeleteFeatureBranch tells the caller to delete feature/<bead>
	// locally and on origin (only set on a genuine successful close).
	DeleteFeatureBranch bool
}

// Engine applies the dispatch table in spec.md §4.5.
type Engine struct {
	limits Limits
}

// New creates an Engine with the given retry limits.
func New(limits Limits) *Engine {
	return &Engine{limits: limits}
}

// Apply runs the dispatch table, first match wins, exactly as ordered
// in spec.md §4.5.
func (e *Engine) Apply(in Input) Result {
	bead := in.Bead
	agent := in.Agent
	stageLabels := bead.StageLabels()

	// 1. Agent left the bead claimed (in_progress) when it exited.
	if bead.Status == model.StatusInProgress {
		return Result{
			NewStatus:          model.StatusOpen,
			RemoveLabels:       extraStageLabels(stageLabels),
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	// 2. The stage the agent was spawned for is no longer present: an
	// external actor (the conductor) already moved this bead. Do nothing
	// structural; only clear a stale rejected label.
	if !hasStageLabel(stageLabels, agent.SpawnedStage) {
		var remove []string
		if bead.IsRejected() {
			remove = []string{model.LabelRejected}
		}
		return Result{
			RemoveLabels:       remove,
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	// 3. Acceptance rejection always blocks for human triage.
	if bead.IsRejected() && agent.SpawnedStage == model.StageAcceptance {
		remove := append(append([]string{}, stageLabels...), model.LabelRejected)
		return Result{
			NewStatus:    model.StatusBlocked,
			RemoveLabels: remove,
			Comment:      "Acceptance rejected — needs human triage.",
			Event: &model.Event{
				Bead: bead.ID, Type: model.EventBlock,
				From: agent.SpawnedStage, Role: agent.Role, Agent: agent.Name,
				Comment: "acceptance rejection",
			},
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	// 4. Rejection loop at any other stage.
	if bead.IsRejected() {
		return e.rejectionLoop(in, stageLabels)
	}

	// 5. The agent successfully closed the bead (or tried to).
	if bead.Status == model.StatusClosed {
		return e.closeTransition(in, stageLabels)
	}

	// 6. Parked for a human: strip any stage label.
	if bead.Status == model.StatusBlocked {
		return Result{
			RemoveLabels:       stageLabels,
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	// 7. Normal advance.
	if bead.Status == model.StatusOpen {
		return e.advance(in, stageLabels)
	}

	// Unreachable given model.Status's closed set, but keep the engine
	// total rather than panicking on an unexpected status value.
	return Result{
		Rejections:         in.Rejections,
		EmptyBranchRetries: in.EmptyBranchRetries,
	}
}

func (e *Engine) rejectionLoop(in Input, stageLabels []string) Result {
	bead, agent := in.Bead, in.Agent
	rejections := in.Rejections + 1
	if rejections > e.limits.MaxRejections {
		rejections = e.limits.MaxRejections
	}

	if rejections >= e.limits.MaxRejections {
		remove := append(append([]string{}, stageLabels...), model.LabelRejected)
		comment := fmt.Sprintf("Blocked after %d rejection loops — needs conductor", e.limits.MaxRejections)
		return Result{
			NewStatus:    model.StatusBlocked,
			RemoveLabels: remove,
			Comment:      comment,
			Event: &model.Event{
				Bead: bead.ID, Type: model.EventLoopBlocked,
				From: agent.SpawnedStage, Role: agent.Role, Agent: agent.Name,
				Count: rejections, Comment: comment,
			},
			Rejections:         rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	remove := append(append([]string{}, stageLabels...), model.LabelRejected)
	return Result{
		AddLabels:    []string{model.StageLabel(model.StageDevelopment)},
		RemoveLabels: remove,
		Event: &model.Event{
			Bead: bead.ID, Type: model.EventReject,
			From: agent.SpawnedStage, To: model.StageDevelopment,
			Role: agent.Role, Agent: agent.Name, Count: rejections,
		},
		Rejections:         rejections,
		EmptyBranchRetries: in.EmptyBranchRetries,
		StartCooldown:      true,
	}
}

func (e *Engine) closeTransition(in Input, stageLabels []string) Result {
	bead, agent := in.Bead, in.Agent
	spawned := agent.SpawnedStage

	// 5a. Premature close: the agent closed the bead before its stage is
	// terminal. Treat it as a successful completion of that stage and
	// synthesize the advance that would otherwise have happened on open.
	if !model.IsTerminal(spawned) {
		next := model.Next(spawned, bead.IsSecurity())
		return Result{
			NewStatus:    model.StatusOpen,
			RemoveLabels: []string{model.StageLabel(spawned)},
			AddLabels:    []string{model.StageLabel(next)},
			Event: &model.Event{
				Bead: bead.ID, Type: model.EventPrematureClose,
				From: spawned, To: next, Role: agent.Role, Agent: agent.Name,
			},
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	// 5b. Merge claimed complete but not actually verified in git: retry.
	if spawned == model.StageMerging && !in.MergeVerified {
		return Result{
			NewStatus:    model.StatusOpen,
			RemoveLabels: []string{model.StageLabel(spawned)},
			AddLabels:    []string{model.StageLabel(spawned)},
			Event: &model.Event{
				Bead: bead.ID, Type: model.EventUnverifiedMerge,
				From: spawned, Role: agent.Role, Agent: agent.Name,
			},
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	// 5c (audit gate). The merging stage's close is the one that retires
	// the bead for good, so it's the one gated on pipeline completeness.
	if spawned == model.StageMerging && !in.AuditPassed {
		comment := "Incomplete pipeline — a required stage never completed, needs conductor."
		return Result{
			NewStatus:    model.StatusBlocked,
			RemoveLabels: []string{model.StageLabel(spawned)},
			Comment:      comment,
			Event: &model.Event{
				Bead: bead.ID, Type: model.EventBlock,
				From: spawned, Role: agent.Role, Agent: agent.Name, Comment: comment,
			},
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	// 5c (success).
	return Result{
		RemoveLabels: []string{model.StageLabel(spawned)},
		Event: &model.Event{
			Bead: bead.ID, Type: model.EventClose,
			From: spawned, Role: agent.Role, Agent: agent.Name,
		},
		Rejections:          0,
		EmptyBranchRetries:  in.EmptyBranchRetries,
		DeleteFeatureBranch: true,
	}
}

func (e *Engine) advance(in Input, stageLabels []string) Result {
	bead, agent := in.Bead, in.Agent
	spawned := agent.SpawnedStage
	next := model.Next(spawned, bead.IsSecurity())

	if next == "" {
		// Terminal stage with no successor: nothing to do.
		return Result{
			Rejections:         in.Rejections,
			EmptyBranchRetries: in.EmptyBranchRetries,
		}
	}

	if spawned == model.StageDevelopment && !in.BranchHasCommits {
		retries := in.EmptyBranchRetries + 1
		if retries >= e.limits.MaxRetries {
			comment := fmt.Sprintf("Blocked after %d empty-branch retries — needs conductor", e.limits.MaxRetries)
			return Result{
				NewStatus:    model.StatusBlocked,
				RemoveLabels: stageLabels,
				Comment:      comment,
				Event: &model.Event{
					Bead: bead.ID, Type: model.EventEmptyBranchBlocked,
					From: spawned, Role: agent.Role, Agent: agent.Name,
					Count: retries, Comment: comment,
				},
				Rejections:         in.Rejections,
				EmptyBranchRetries: e.limits.MaxRetries,
			}
		}
		return Result{
			RemoveLabels: []string{model.StageLabel(spawned)},
			AddLabels:    []string{model.StageLabel(spawned)},
			Event: &model.Event{
				Bead: bead.ID, Type: model.EventEmptyBranch,
				From: spawned, Role: agent.Role, Agent: agent.Name, Retry: retries,
			},
			Rejections:         in.Rejections,
			EmptyBranchRetries: retries,
		}
	}

	return Result{
		RemoveLabels: []string{model.StageLabel(spawned)},
		AddLabels:    []string{model.StageLabel(next)},
		Event: &model.Event{
			Bead: bead.ID, Type: model.EventAdvance,
			From: spawned, To: next, Role: agent.Role, Agent: agent.Name,
		},
		Rejections:         in.Rejections,
		EmptyBranchRetries: in.EmptyBranchRetries,
	}
}

func hasStageLabel(stageLabels []string, stage model.Stage) bool {
	want := model.StageLabel(stage)
	for _, l := range stageLabels {
		if l == want {
			return true
		}
	}
	return false
}

// extraStageLabels returns every stage label beyond the first, for
// single-stage-invariant repair.
func extraStageLabels(stageLabels []string) []string {
	if len(stageLabels) <= 1 {
		return nil
	}
	return append([]string(nil), stageLabels[1:]...)
}
