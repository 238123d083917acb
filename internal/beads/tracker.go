package beads

import "github.com/tsturo/debussy/internal/model"

// Tracker is the interface the rest of the watcher programs against,
// satisfied by *Client (real bd CLI) and *Fake (tests). Keeping this
// narrow surface lets the scheduler, transition engine, and watcher loop
// run in-process tests without invoking bd at all.
type Tracker interface {
	Get(id string) (*model.Bead, error)
	List(status model.Status, label string) []*model.Bead
	ListAll() []*model.Bead
	Update(id string, u Update) error
	Comment(id, text string) error
	UnresolvedDeps(b *model.Bead) []string
}

var _ Tracker = (*Client)(nil)

// RepairStageLabels re-fetches id and enforces the single-stage
// invariant (spec.md §4.5: "after every successful write, re-fetch the
// bead and enforce the single-stage invariant — remove any extras, keep
// the first"). A no-op when the bead carries at most one stage label,
// which is the overwhelmingly common case; the extra round trip only
// does work when an external writer (the conductor, a user) raced the
// watcher and left more than one.
func RepairStageLabels(t Tracker, id string) error {
	bead, err := t.Get(id)
	if err != nil {
		return err
	}
	labels := bead.StageLabels()
	if len(labels) <= 1 {
		return nil
	}
	return t.Update(id, Update{RemoveLabels: append([]string(nil), labels[1:]...)})
}
