// Package metrics aggregates the pipeline event log into a per-bead
// stage trail and per-stage timing averages, supplementing a feature
// the distilled spec dropped: original_source/src/debussy/metrics.py's
// cmd_metrics walk over pipeline_events.jsonl. Adapted from the
// original's fold-events-into-a-trail algorithm to the Go event shape:
// where the Python version reads a spawn event's own "stage" field to
// learn what stage just started, advance/reject/close events here
// already carry that as From, so the fold needs no stage-for-role
// lookup except to seed the very first stage a bead was spawned into.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/tsturo/debussy/internal/model"
)

// stageShort mirrors the original's STAGE_SHORT abbreviation table.
var stageShort = map[model.Stage]string{
	model.StageDevelopment:    "dev",
	model.StageReviewing:      "rev",
	model.StageSecurityReview: "sec",
	model.StageMerging:        "merge",
	model.StageAcceptance:     "accept",
	model.StageInvestigating:  "invest",
	model.StageConsolidating:  "consol",
}

func shortName(s model.Stage) string {
	if short, ok := stageShort[s]; ok {
		return short
	}
	return string(s)
}

// FormatDuration renders a duration the way the original's
// fmt_duration does: seconds, minutes, or hours, picking the coarsest
// unit that keeps the number readable.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

// BeadTrail is one bead's stage-by-stage history rendered as a single
// line, e.g. "dev(2x 4m) -> rev(1m) -> merge(30s) -> done".
type BeadTrail struct {
	Bead  string
	Trail string
	Total time.Duration
}

// StageAverage is the mean time spent in one stage across every bead
// that passed through it.
type StageAverage struct {
	Stage   model.Stage
	Average time.Duration
	Count   int
}

// Report is the full aggregate `debussy metrics` renders.
type Report struct {
	BeadTrails    []BeadTrail
	StageAverages []StageAverage
	Rejections    int
	Timeouts      int
}

// stageForRole seeds the current stage for a bead before its first
// advance/reject/close event is seen, from the role of its first spawn.
func stageForRole(r model.Role) model.Stage {
	switch r {
	case model.RoleDeveloper:
		return model.StageDevelopment
	case model.RoleReviewer:
		return model.StageReviewing
	case model.RoleSecurityReviewer:
		return model.StageSecurityReview
	case model.RoleIntegrator:
		return model.StageMerging
	case model.RoleTester:
		return model.StageAcceptance
	case model.RoleInvestigator:
		return model.StageInvestigating
	default:
		return ""
	}
}

// Compute folds a flat event log into a Report. Events need not be
// pre-sorted; each bead's own events are sorted by timestamp before the
// fold.
func Compute(events []model.Event) Report {
	byBead := make(map[string][]model.Event)
	var order []string
	for _, e := range events {
		if _, ok := byBead[e.Bead]; !ok {
			order = append(order, e.Bead)
		}
		byBead[e.Bead] = append(byBead[e.Bead], e)
	}

	var trails []BeadTrail
	stageDurations := make(map[model.Stage][]time.Duration)
	var rejections, timeouts int

	for _, bead := range order {
		trail, total, durations, rej, to := processBead(byBead[bead])
		rejections += rej
		timeouts += to
		for stage, ds := range durations {
			stageDurations[stage] = append(stageDurations[stage], ds...)
		}
		trails = append(trails, BeadTrail{Bead: bead, Trail: trail, Total: total})
	}

	return Report{
		BeadTrails:    trails,
		StageAverages: computeStageAverages(stageDurations),
		Rejections:    rejections,
		Timeouts:      timeouts,
	}
}

func processBead(events []model.Event) (trail string, total time.Duration, durations map[model.Stage][]time.Duration, rejections, timeouts int) {
	sorted := append([]model.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	durations = make(map[model.Stage][]time.Duration)
	stageCounts := make(map[model.Stage]int)
	var steps []string

	var currentStage model.Stage
	var stageStart time.Time

	for _, e := range sorted {
		switch e.Type {
		case model.EventSpawn:
			if currentStage == "" {
				currentStage = stageForRole(e.Role)
				stageStart = e.Timestamp
			}
		case model.EventAdvance, model.EventClose:
			if !stageStart.IsZero() && currentStage != "" {
				dur := e.Timestamp.Sub(stageStart)
				steps = append(steps, formatStageEntry(currentStage, dur, stageCounts))
				durations[currentStage] = append(durations[currentStage], dur)
			}
			if e.Type == model.EventClose {
				steps = append(steps, "done")
			} else {
				currentStage, stageStart = e.To, e.Timestamp
			}
		case model.EventReject:
			rejections++
			if !stageStart.IsZero() && currentStage != "" {
				dur := e.Timestamp.Sub(stageStart)
				steps = append(steps, fmt.Sprintf("%s(%s!)", shortName(currentStage), FormatDuration(dur)))
				durations[currentStage] = append(durations[currentStage], dur)
			}
			currentStage, stageStart = e.To, e.Timestamp
		case model.EventTimeout:
			timeouts++
		}
	}

	if len(sorted) > 1 {
		total = sorted[len(sorted)-1].Timestamp.Sub(sorted[0].Timestamp)
	}

	trail = "started"
	if len(steps) > 0 {
		trail = joinArrows(steps)
	}
	return trail, total, durations, rejections, timeouts
}

func formatStageEntry(stage model.Stage, dur time.Duration, stageCounts map[model.Stage]int) string {
	count := stageCounts[stage] + 1
	stageCounts[stage] = count
	if count > 1 {
		return fmt.Sprintf("%s(%dx %s)", shortName(stage), count, FormatDuration(dur))
	}
	return fmt.Sprintf("%s(%s)", shortName(stage), FormatDuration(dur))
}

func joinArrows(steps []string) string {
	out := steps[0]
	for _, s := range steps[1:] {
		out += " -> " + s
	}
	return out
}

// stageOrder is the fixed sweep order averages are reported in,
// matching the original's STAGE_DEVELOPMENT..STAGE_ACCEPTANCE tuple.
var stageOrder = []model.Stage{
	model.StageDevelopment,
	model.StageReviewing,
	model.StageSecurityReview,
	model.StageMerging,
	model.StageAcceptance,
}

func computeStageAverages(durations map[model.Stage][]time.Duration) []StageAverage {
	var out []StageAverage
	for _, stage := range stageOrder {
		ds := durations[stage]
		if len(ds) == 0 {
			continue
		}
		var sum time.Duration
		for _, d := range ds {
			sum += d
		}
		out = append(out, StageAverage{Stage: stage, Average: sum / time.Duration(len(ds)), Count: len(ds)})
	}
	return out
}
