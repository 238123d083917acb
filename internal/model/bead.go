// Package model defines the core data types shared across the watcher:
// beads (work items), agent records, stages, and the event log schema.
package model

import "strings"

// Status is a bead's lifecycle status in the tracker.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// Label prefixes and well-known labels used by the core.
const (
	StageLabelPrefix  = "stage:"
	LabelRejected     = "rejected"
	LabelSecurity     = "security"
	LabelFrontend     = "frontend"
)

// Dependency is an embedded reference to another bead, carrying a cached
// status so the scanner can usually avoid a second tracker round trip.
type Dependency struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Unresolved reports whether this dependency still blocks its parent.
func (d Dependency) Unresolved() bool {
	return d.Status != StatusClosed
}

// Bead is a work item as owned by the external tracker.
type Bead struct {
	ID           string       `json:"id"`
	Status       Status       `json:"status"`
	Labels       []string     `json:"labels"`
	ParentID     string       `json:"parent_id,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	IssueType    string       `json:"issue_type,omitempty"`
}

// HasLabel reports whether the bead carries the given label verbatim.
func (b *Bead) HasLabel(label string) bool {
	for _, l := range b.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// StageLabels returns every label on the bead that carries the stage
// prefix, in the order they appear.
func (b *Bead) StageLabels() []string {
	var out []string
	for _, l := range b.Labels {
		if strings.HasPrefix(l, StageLabelPrefix) {
			out = append(out, l)
		}
	}
	return out
}

// Stage returns the bead's current stage, or "" if it carries none.
// If more than one stage label is present (a single-stage invariant
// violation left by an external writer racing the watcher), the first
// one wins; beads.RepairStageLabels is the general repair for this,
// called after the transition engine's and scheduler's writes.
func (b *Bead) Stage() Stage {
	labels := b.StageLabels()
	if len(labels) == 0 {
		return ""
	}
	return Stage(strings.TrimPrefix(labels[0], StageLabelPrefix))
}

// IsSecurity reports whether the bead is routed through security review.
func (b *Bead) IsSecurity() bool {
	return b.HasLabel(LabelSecurity)
}

// IsRejected reports whether the bead was marked rejected by its agent.
func (b *Bead) IsRejected() bool {
	return b.HasLabel(LabelRejected)
}

// UnresolvedDependencies returns the IDs of dependencies that are not
// closed, using the embedded status. Callers needing a freshly-checked
// view should re-fetch each dependency bead instead.
func (b *Bead) UnresolvedDependencies() []string {
	var out []string
	for _, d := range b.Dependencies {
		if d.Unresolved() {
			out = append(out, d.ID)
		}
	}
	return out
}

// StageLabel formats a stage as its tracker label.
func StageLabel(s Stage) string {
	if s == "" {
		return ""
	}
	return StageLabelPrefix + string(s)
}
