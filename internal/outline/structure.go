package outline

import (
	"github.com/pstuifzand/section-outliner/internal/model"
)

// Indent makes the section the last child of its previous sibling. The new
// parent is expanded so the section stays visible.
func (e *Engine) Indent(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	if t.index == 0 {
		return notApplicable(ReasonNoPrevious)
	}
	// the deepest descendant moves down one level too
	if t.pos.Depth()+e.doc.Height(id) > model.MaxDepth {
		return notApplicable(ReasonTooDeep)
	}

	newParent, _ := e.doc.Section(t.siblings[t.index-1])
	e.doc.Detach(id)
	e.doc.Attach(id, newParent.ID, len(newParent.Children))

	var changed []string
	if expand(newParent) {
		changed = append(changed, newParent.ID)
	}
	return moved(id, changed...)
}

// Outdent makes the section the next sibling of its parent
func (e *Engine) Outdent(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	if t.parentID == "" {
		return notApplicable(ReasonTopLevel)
	}

	grandID, _ := e.doc.ParentOf(t.parentID)
	e.doc.Detach(id)
	// index of the old parent, computed once the section is gone
	parentIdx := e.doc.IndexOf(t.parentID)
	e.doc.Attach(id, grandID, parentIdx+1)
	return moved(id)
}

// MoveUp swaps the section with its previous sibling. The first child moves
// into its parent's previous sibling as the last child instead.
func (e *Engine) MoveUp(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	if t.index > 0 {
		e.doc.Detach(id)
		e.doc.Attach(id, t.parentID, t.index-1)
		return moved(id)
	}

	uncle, ok := e.uncle(t.parentID, -1)
	if !ok {
		return notApplicable(ReasonAtBoundary)
	}
	e.doc.Detach(id)
	e.doc.Attach(id, uncle.ID, len(uncle.Children))

	var changed []string
	if expand(uncle) {
		changed = append(changed, uncle.ID)
	}
	return moved(id, changed...)
}

// MoveDown swaps the section with its next sibling. The last child moves into
// its parent's next sibling as the first child instead.
func (e *Engine) MoveDown(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	if t.index < len(t.siblings)-1 {
		e.doc.Detach(id)
		// after detaching, the old next sibling sits at t.index
		e.doc.Attach(id, t.parentID, t.index+1)
		return moved(id)
	}

	uncle, ok := e.uncle(t.parentID, +1)
	if !ok {
		return notApplicable(ReasonAtBoundary)
	}
	e.doc.Detach(id)
	e.doc.Attach(id, uncle.ID, 0)

	var changed []string
	if expand(uncle) {
		changed = append(changed, uncle.ID)
	}
	return moved(id, changed...)
}

// uncle returns the sibling of parentID at offset dir
func (e *Engine) uncle(parentID string, dir int) (*model.Section, bool) {
	if parentID == "" {
		return nil, false
	}
	grandID, _ := e.doc.ParentOf(parentID)
	aunts := e.doc.Children(grandID)
	idx := e.doc.IndexOf(parentID) + dir
	if idx < 0 || idx >= len(aunts) {
		return nil, false
	}
	return e.doc.Section(aunts[idx])
}
