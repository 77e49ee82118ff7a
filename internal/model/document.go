// Package model contains the section tree of an outline document
package model

import (
	"strings"

	"github.com/google/uuid"
)

// MaxDepth is the deepest nesting level a section may have (roots are depth 1)
const MaxDepth = 6

// Section is a single node of the outline: a heading, a rich body and ordered
// children. Children are referenced by id; the owning Document holds the nodes.
type Section struct {
	ID        string
	Collapsed bool
	Heading   InlineContent
	Body      BlockContent
	Children  []string
}

// Document is an ordered list of top-level sections backed by an arena keyed
// by section id. Parents are never stored; they are found by traversal.
type Document struct {
	roots    []string
	sections map[string]*Section
}

// NewSection creates a section with a generated ID
func NewSection(heading InlineContent, body BlockContent) *Section {
	return &Section{
		ID:       NewID(),
		Heading:  heading.Clone(),
		Body:     body.Clone(),
		Children: []string{},
	}
}

// NewID generates a unique section id
func NewID() string {
	return "sec-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// NewDocument creates a document holding a single empty section
func NewDocument() *Document {
	d := newEmptyDocument()
	d.Insert(NewSection(nil, nil), "", 0)
	return d
}

func newEmptyDocument() *Document {
	return &Document{
		roots:    make([]string, 0),
		sections: make(map[string]*Section),
	}
}

// Section returns the section with the given id
func (d *Document) Section(id string) (*Section, bool) {
	s, ok := d.sections[id]
	return s, ok
}

// Roots returns a copy of the top-level section ids
func (d *Document) Roots() []string {
	return append([]string(nil), d.roots...)
}

// Len returns the number of sections in the document
func (d *Document) Len() int {
	return len(d.sections)
}

// Children returns a copy of the child ids of a section; the empty id
// addresses the top level
func (d *Document) Children(parentID string) []string {
	list := d.childList(parentID)
	if list == nil {
		return nil
	}
	return append([]string(nil), (*list)...)
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	out := &Document{
		roots:    append([]string{}, d.roots...),
		sections: make(map[string]*Section, len(d.sections)),
	}
	for id, s := range d.sections {
		out.sections[id] = s.Clone()
	}
	return out
}

// Clone returns a deep copy of the section
func (s *Section) Clone() *Section {
	return &Section{
		ID:        s.ID,
		Collapsed: s.Collapsed,
		Heading:   s.Heading.Clone(),
		Body:      s.Body.Clone(),
		Children:  append([]string{}, s.Children...),
	}
}

// IsEffectivelyEmpty reports whether the section has a whitespace-only
// heading, a whitespace-only body and no children
func (s *Section) IsEffectivelyEmpty() bool {
	return len(s.Children) == 0 && s.Heading.IsBlank() && s.Body.IsBlank()
}

// childList returns the slice holding the children of parentID
func (d *Document) childList(parentID string) *[]string {
	if parentID == "" {
		return &d.roots
	}
	p, ok := d.sections[parentID]
	if !ok {
		return nil
	}
	return &p.Children
}

// Detach removes a section from its parent's child list. The section and its
// subtree stay in the arena so they can be attached elsewhere.
func (d *Document) Detach(id string) (parentID string, index int, ok bool) {
	parentID, found := d.ParentOf(id)
	if !found {
		return "", -1, false
	}
	list := d.childList(parentID)
	for i, c := range *list {
		if c == id {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return parentID, i, true
		}
	}
	return "", -1, false
}

// Attach inserts an arena section into parentID's children at index. The
// index is clamped to the valid range.
func (d *Document) Attach(id, parentID string, index int) bool {
	if _, ok := d.sections[id]; !ok {
		return false
	}
	list := d.childList(parentID)
	if list == nil {
		return false
	}
	if index < 0 {
		index = 0
	}
	if index > len(*list) {
		index = len(*list)
	}
	next := make([]string, 0, len(*list)+1)
	next = append(next, (*list)[:index]...)
	next = append(next, id)
	next = append(next, (*list)[index:]...)
	*list = next
	return true
}

// Insert adds a new section to the arena and attaches it
func (d *Document) Insert(s *Section, parentID string, index int) bool {
	if s == nil || s.ID == "" {
		return false
	}
	if _, exists := d.sections[s.ID]; exists {
		return false
	}
	if d.childList(parentID) == nil {
		return false
	}
	if s.Heading == nil {
		s.Heading = InlineContent{}
	}
	if s.Body == nil {
		s.Body = BlockContent{}
	}
	if s.Children == nil {
		s.Children = []string{}
	}
	d.sections[s.ID] = s
	return d.Attach(s.ID, parentID, index)
}

// RemoveSubtree detaches a section and drops it and all its descendants from
// the arena. It returns the removed ids in document order.
func (d *Document) RemoveSubtree(id string) []string {
	if _, _, ok := d.Detach(id); !ok {
		return nil
	}
	var removed []string
	var drop func(string)
	drop = func(sid string) {
		s, ok := d.sections[sid]
		if !ok {
			return
		}
		removed = append(removed, sid)
		for _, c := range s.Children {
			drop(c)
		}
		delete(d.sections, sid)
	}
	drop(id)
	return removed
}

// RemoveSingle detaches a childless section and drops it from the arena
func (d *Document) RemoveSingle(id string) bool {
	s, ok := d.sections[id]
	if !ok || len(s.Children) > 0 {
		return false
	}
	if _, _, ok := d.Detach(id); !ok {
		return false
	}
	delete(d.sections, id)
	return true
}
