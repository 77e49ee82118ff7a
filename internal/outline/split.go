package outline

import (
	"github.com/pstuifzand/section-outliner/internal/model"
)

// Split divides the section at the caret into itself and a new next sibling.
//
// In the heading, the text after the caret becomes the new section's heading
// and the body and children move with it. In the body, the content after the
// caret's paragraph boundary moves to a new section with an empty heading,
// together with all children. A collapsed section is never split; an empty
// sibling is added after it instead.
func (e *Engine) Split(id string, caret Caret) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	s := t.section
	if s.Collapsed {
		return e.insertAfter(t)
	}

	n := &model.Section{ID: e.newID(), Children: s.Children}
	if caret.InHeading {
		left, right := s.Heading.Split(caret.Offset)
		n.Heading = right
		n.Body = s.Body
		s.Heading = left
		s.Body = model.BlockContent{}
	} else {
		head, tail := s.Body.SplitAt(caret.Block, caret.Offset)
		n.Heading = model.InlineContent{}
		n.Body = tail
		s.Body = head
	}
	s.Children = []string{}
	e.doc.Insert(n, t.parentID, t.index+1)

	return Result{
		Applied:    true,
		Cursor:     Cursor{SectionID: n.ID, Caret: HeadingStart},
		Changed:    []string{s.ID, n.ID},
		Structural: true,
	}
}

// InsertAfter adds an empty section right after id, at the same level
func (e *Engine) InsertAfter(id string) Result {
	t, ok := e.resolve(id)
	if !ok {
		return notApplicable(ReasonNotFound)
	}
	return e.insertAfter(t)
}

func (e *Engine) insertAfter(t target) Result {
	n := &model.Section{ID: e.newID()}
	e.doc.Insert(n, t.parentID, t.index+1)
	return Result{
		Applied:    true,
		Cursor:     Cursor{SectionID: n.ID, Caret: HeadingStart},
		Changed:    []string{n.ID},
		Structural: true,
	}
}
