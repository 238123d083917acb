// Package audit implements validate_bead_pipeline (spec.md §4.9): a
// completeness check folded from the event log, consulted by the
// transition engine's merging-close gate.
package audit

import "github.com/tsturo/debussy/internal/model"

// RequiredStages returns the stages that must show a completion before a
// bead is allowed to close out of merging. Security-labelled beads
// additionally require security-review.
func RequiredStages(security bool) []model.Stage {
	stages := []model.Stage{model.StageDevelopment, model.StageReviewing}
	if security {
		stages = append(stages, model.StageSecurityReview)
	}
	return stages
}

// Result reports whether a bead's event trail shows every required stage
// complete, and which ones are missing if not.
type Result struct {
	Passed  bool
	Missing []model.Stage
}

// Validate folds events for one bead and checks each required stage has
// either an advance(from=stage) or a close(from=stage) record.
func Validate(events []model.Event, security bool) Result {
	completed := make(map[model.Stage]bool)
	for _, e := range events {
		switch e.Type {
		case model.EventAdvance, model.EventClose:
			if e.From != "" {
				completed[e.From] = true
			}
		}
	}

	var missing []model.Stage
	for _, stage := range RequiredStages(security) {
		if !completed[stage] {
			missing = append(missing, stage)
		}
	}

	return Result{Passed: len(missing) == 0, Missing: missing}
}
