package beads

import (
	"fmt"

	"github.com/tsturo/debussy/internal/model"
)

// Fake is an in-memory Tracker for tests: a plain map-backed store
// with no process boundary, so scheduler/transition/watcher tests can
// run without bd installed.
type Fake struct {
	beads    map[string]*model.Bead
	Comments map[string][]string
	Updates  []FakeUpdate
}

// FakeUpdate records one Update call for assertions in tests.
type FakeUpdate struct {
	ID     string
	Update Update
}

// NewFake creates an empty Fake tracker.
func NewFake() *Fake {
	return &Fake{
		beads:    make(map[string]*model.Bead),
		Comments: make(map[string][]string),
	}
}

// Put inserts or replaces a bead in the fake store. The bead is copied
// so later mutation by the caller doesn't alias fake state.
func (f *Fake) Put(b model.Bead) {
	cp := b
	cp.Labels = append([]string(nil), b.Labels...)
	cp.Dependencies = append([]model.Dependency(nil), b.Dependencies...)
	f.beads[cp.ID] = &cp
}

func (f *Fake) Get(id string) (*model.Bead, error) {
	b, ok := f.beads[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	cp.Labels = append([]string(nil), b.Labels...)
	return &cp, nil
}

func (f *Fake) List(status model.Status, label string) []*model.Bead {
	var out []*model.Bead
	for _, b := range f.beads {
		if b.Status != status {
			continue
		}
		if label != "" && !b.HasLabel(label) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	return out
}

func (f *Fake) ListAll() []*model.Bead {
	var out []*model.Bead
	for _, b := range f.beads {
		cp := *b
		out = append(out, &cp)
	}
	return out
}

func (f *Fake) Update(id string, u Update) error {
	b, ok := f.beads[id]
	if !ok {
		return fmt.Errorf("bead %s not found", id)
	}
	f.Updates = append(f.Updates, FakeUpdate{ID: id, Update: u})

	if u.Status != "" {
		b.Status = u.Status
	}
	removed := make(map[string]bool, len(u.RemoveLabels))
	for _, l := range u.RemoveLabels {
		removed[l] = true
	}
	kept := make([]string, 0, len(b.Labels))
	for _, l := range b.Labels {
		if !removed[l] {
			kept = append(kept, l)
		}
	}
	for _, l := range u.AddLabels {
		found := false
		for _, k := range kept {
			if k == l {
				found = true
				break
			}
		}
		if !found {
			kept = append(kept, l)
		}
	}
	b.Labels = kept
	return nil
}

func (f *Fake) Comment(id, text string) error {
	if _, ok := f.beads[id]; !ok {
		return fmt.Errorf("bead %s not found", id)
	}
	f.Comments[id] = append(f.Comments[id], text)
	return nil
}

func (f *Fake) UnresolvedDeps(b *model.Bead) []string {
	var out []string
	for _, d := range b.Dependencies {
		if d.Status != "" {
			if d.Unresolved() {
				out = append(out, d.ID)
			}
			continue
		}
		dep := f.beads[d.ID]
		if dep == nil || dep.Status != model.StatusClosed {
			out = append(out, d.ID)
		}
	}
	return out
}

var _ Tracker = (*Fake)(nil)
