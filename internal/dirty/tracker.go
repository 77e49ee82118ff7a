package dirty

import (
	"sort"

	"github.com/pstuifzand/section-outliner/internal/diff"
	"github.com/pstuifzand/section-outliner/internal/model"
)

// Tracker keeps the fingerprints and tree shape of the last saved state and
// the set of sections that changed since then. Sections only leave the dirty
// set when a save is committed.
type Tracker struct {
	committed map[string]*diff.SectionData
	dirty     map[string]bool
	deleted   map[string]bool
	structure bool
}

// NewTracker returns a tracker with nothing committed
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset forgets everything, including the committed state
func (t *Tracker) Reset() {
	t.committed = make(map[string]*diff.SectionData)
	t.dirty = make(map[string]bool)
	t.deleted = make(map[string]bool)
	t.structure = false
}

// Commit records doc as saved and clears the dirty set
func (t *Tracker) Commit(doc *model.Document) {
	t.committed = diff.Flatten(doc, Fingerprint)
	t.dirty = make(map[string]bool)
	t.deleted = make(map[string]bool)
	t.structure = false
}

// MarkIfChanged compares the live fingerprint of id with the committed one
// and adds the section to the dirty set when they differ. The result gates
// work that should only happen for sections that really changed.
func (t *Tracker) MarkIfChanged(doc *model.Document, id string) bool {
	s, ok := doc.Section(id)
	if !ok {
		return false
	}
	if old, ok := t.committed[id]; ok && old.Fingerprint == Fingerprint(s) {
		return false
	}
	t.dirty[id] = true
	return true
}

// MarkStructure compares the tree shape with the committed one. New sections
// become dirty, removed ones are remembered as deleted. It reports whether
// the shape differs.
func (t *Tracker) MarkStructure(doc *model.Document) bool {
	changed := false
	live := make(map[string]bool, doc.Len())
	for _, node := range model.StructureSnapshot(doc) {
		live[node.SectionID] = true
		old, ok := t.committed[node.SectionID]
		switch {
		case !ok:
			t.dirty[node.SectionID] = true
			changed = true
		case old.ParentID != node.Parent() || old.Position != node.Position || old.Collapsed != node.Collapsed:
			changed = true
		}
	}
	for id := range t.committed {
		if !live[id] {
			t.deleted[id] = true
			changed = true
		}
	}
	if changed {
		t.structure = true
	}
	return changed
}

// IsDirty reports whether anything is waiting to be saved
func (t *Tracker) IsDirty() bool {
	return len(t.dirty) > 0 || len(t.deleted) > 0 || t.structure
}

// Dirty returns the dirty section ids, sorted
func (t *Tracker) Dirty() []string {
	return sortedKeys(t.dirty)
}

// StructureChanged reports whether the tree shape changed since the last commit
func (t *Tracker) StructureChanged() bool {
	return t.structure
}

// Deleted returns the committed sections that no longer exist, sorted
func (t *Tracker) Deleted() []string {
	return sortedKeys(t.deleted)
}

// Changes compares the committed state with doc
func (t *Tracker) Changes(doc *model.Document) *diff.DiffResult {
	return diff.Compare(t.committed, diff.Flatten(doc, Fingerprint))
}

// Capture is the tracker state at the moment a save starts
type Capture struct {
	Sections         map[string]*diff.SectionData
	Dirty            []string
	Deleted          []string
	StructureChanged bool
}

// Capture records what a save is about to send. Dirty sections that no
// longer exist are left out.
func (t *Tracker) Capture(doc *model.Document) Capture {
	c := Capture{
		Sections:         diff.Flatten(doc, Fingerprint),
		Deleted:          t.Deleted(),
		StructureChanged: t.structure,
	}
	for _, id := range t.Dirty() {
		if _, ok := c.Sections[id]; ok {
			c.Dirty = append(c.Dirty, id)
		}
	}
	return c
}

// CommitCapture records a captured state as saved. Sections edited while the
// save was in flight stay dirty, as does a shape that changed since.
func (t *Tracker) CommitCapture(c Capture, live *model.Document) {
	t.committed = c.Sections
	for id := range t.dirty {
		s, ok := live.Section(id)
		if !ok {
			delete(t.dirty, id)
			continue
		}
		if old, ok := t.committed[id]; ok && old.Fingerprint == Fingerprint(s) {
			delete(t.dirty, id)
		}
	}
	t.deleted = make(map[string]bool)
	t.structure = false
	t.MarkStructure(live)
}

func sortedKeys(m map[string]bool) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
