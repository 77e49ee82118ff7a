package outline

// ToggleCollapsed changes the collapsed flag of one or more sections. Only
// sections whose flag actually changes are reported, and a command that
// changes nothing is not applicable.
func (e *Engine) ToggleCollapsed(id string, scope Scope) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}

	var ids []string
	want := true
	focus := id
	switch scope {
	case ScopeSelf:
		ids = []string{id}
		want = !t.section.Collapsed
	case ScopeCollapseParentSubtree:
		if t.parentID == "" {
			return notApplicable(ReasonTopLevel)
		}
		ids = e.doc.Subtree(t.parentID)
		focus = t.parentID
	case ScopeExpandSubtree:
		ids = e.doc.Subtree(id)
		want = false
	default:
		return notApplicable(ReasonNothingToToggle)
	}

	var changed []string
	for _, sid := range ids {
		s, ok := e.doc.Section(sid)
		if !ok || s.Collapsed == want {
			continue
		}
		s.Collapsed = want
		changed = append(changed, sid)
	}
	if len(changed) == 0 {
		return notApplicable(ReasonNothingToToggle)
	}
	return Result{
		Applied:    true,
		Cursor:     Cursor{SectionID: focus, Caret: HeadingStart},
		Changed:    changed,
		Structural: true,
	}
}

// CollapseTargets returns the sections a toggle would collapse, so callers
// can leave edit mode before the section being edited gets hidden
func (e *Engine) CollapseTargets(id string, scope Scope) []string {
	t, ok := e.resolve(id)
	if !ok {
		return nil
	}
	switch scope {
	case ScopeSelf:
		if !t.section.Collapsed {
			return []string{id}
		}
	case ScopeCollapseParentSubtree:
		if t.parentID != "" {
			return e.doc.Subtree(t.parentID)
		}
	}
	return nil
}
