package outline

import (
	"github.com/pstuifzand/section-outliner/internal/model"
)

// Delete removes the section and its subtree and moves focus to the next
// sibling, the previous sibling or the parent. The only top-level section is
// never removed: its content and children are cleared instead.
func (e *Engine) Delete(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}

	if t.parentID == "" && len(t.siblings) == 1 {
		return e.clearLast(t.section)
	}

	focus := t.parentID
	switch {
	case t.index+1 < len(t.siblings):
		focus = t.siblings[t.index+1]
	case t.index > 0:
		focus = t.siblings[t.index-1]
	}
	removed := e.doc.RemoveSubtree(id)
	return Result{
		Applied:    true,
		Cursor:     Cursor{SectionID: focus, Caret: HeadingStart},
		Removed:    removed,
		Structural: true,
	}
}

func (e *Engine) clearLast(s *model.Section) Result {
	if len(s.Children) == 0 && len(s.Heading) == 0 && len(s.Body) == 0 && !s.Collapsed {
		return notApplicable(ReasonAlreadyEmpty)
	}
	var removed []string
	for _, c := range append([]string(nil), s.Children...) {
		removed = append(removed, e.doc.RemoveSubtree(c)...)
	}
	s.Heading = model.InlineContent{}
	s.Body = model.BlockContent{}
	s.Collapsed = false
	return Result{
		Applied:    true,
		Cursor:     Cursor{SectionID: s.ID, Caret: HeadingStart},
		Changed:    []string{s.ID},
		Removed:    removed,
		Structural: len(removed) > 0,
	}
}

// MergeBackward is the backspace at the start of a heading. An effectively
// empty section is deleted. Otherwise the section is merged into its previous
// sibling, or into its parent's body when it is the first child.
func (e *Engine) MergeBackward(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	if t.section.IsEffectivelyEmpty() {
		return e.Delete(id)
	}
	if t.index > 0 {
		return e.MergeIntoPrevious(id)
	}
	if t.parentID != "" {
		return e.MergeIntoParentBody(id)
	}
	return notApplicable(ReasonNothingToMerge)
}

// MergeIntoPrevious moves the heading (as a paragraph) and body of the
// section to the end of its previous sibling's body, appends its children to
// the previous sibling's children and removes the section.
func (e *Engine) MergeIntoPrevious(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	if t.index == 0 {
		return notApplicable(ReasonNoPrevious)
	}
	prev, _ := e.doc.Section(t.siblings[t.index-1])

	children, caret := e.fold(t.section, prev)
	prev.Children = append(append([]string{}, prev.Children...), children...)
	return merged(id, prev, caret)
}

// MergeIntoParentBody moves the heading (as a paragraph) and body of a first
// child to the end of its parent's body. Its children become the parent's
// first children.
func (e *Engine) MergeIntoParentBody(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	if t.parentID == "" || t.index != 0 {
		return notApplicable(ReasonNothingToMerge)
	}
	parent, _ := e.doc.Section(t.parentID)

	children, caret := e.fold(t.section, parent)
	parent.Children = append(append([]string{}, children...), parent.Children...)
	return merged(id, parent, caret)
}

// fold appends the content of s to into's body and takes s out of the
// document. It returns the former children of s, which are left unattached,
// and the caret at the join.
func (e *Engine) fold(s, into *model.Section) ([]string, Caret) {
	caretBlock := len(into.Body)
	body := into.Body.Clone()
	if !s.Heading.IsBlank() {
		body = append(body, model.Paragraph(s.Heading))
	}
	body = append(body, s.Body.Clone()...)
	into.Body = body

	children := s.Children
	s.Children = []string{}
	e.doc.RemoveSingle(s.ID)

	if caretBlock == len(body) {
		return children, Caret{InHeading: true, Offset: into.Heading.Len()}
	}
	return children, Caret{Block: caretBlock}
}

func merged(id string, into *model.Section, caret Caret) Result {
	expand(into)
	return Result{
		Applied:    true,
		Cursor:     Cursor{SectionID: into.ID, Caret: caret},
		Changed:    []string{into.ID},
		Removed:    []string{id},
		Structural: true,
	}
}
