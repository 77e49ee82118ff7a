// Package outline implements the structural commands of the section tree:
// indent, outdent, move, delete, merge, split and collapse.
//
// Every command either applies completely or leaves the document untouched
// and reports why it was not applicable.
package outline

import (
	"github.com/pstuifzand/section-outliner/internal/model"
)

// Reasons reported when a command is not applicable
const (
	ReasonNotFound        = "section not found"
	ReasonNoPrevious      = "no previous sibling"
	ReasonTopLevel        = "already at top level"
	ReasonTooDeep         = "maximum depth reached"
	ReasonAtBoundary      = "no section to move into"
	ReasonAlreadyEmpty    = "last section is already empty"
	ReasonNothingToMerge  = "nothing to merge into"
	ReasonNothingToToggle = "nothing to toggle"
)

// Caret is a location inside a section. In the heading Offset counts caret
// positions from the start; in the body Block is the block index and Offset
// the position inside that block.
type Caret struct {
	InHeading bool
	Block     int
	Offset    int
}

// HeadingStart is the caret at the very start of a heading
var HeadingStart = Caret{InHeading: true}

// Cursor is where focus should go after a command
type Cursor struct {
	SectionID string
	Caret     Caret
}

// Result describes the outcome of a command
type Result struct {
	Applied bool
	Cursor  Cursor
	// Changed lists sections whose heading, body or collapsed flag changed
	Changed []string
	// Removed lists sections that no longer exist
	Removed []string
	// Structural is set when the tree shape changed
	Structural bool
	Reason     string
}

func notApplicable(reason string) Result {
	return Result{Reason: reason}
}

// Scope selects which sections ToggleCollapsed affects
type Scope int

const (
	// ScopeSelf toggles only the target section
	ScopeSelf Scope = iota
	// ScopeCollapseParentSubtree collapses the parent and all its descendants
	ScopeCollapseParentSubtree
	// ScopeExpandSubtree expands the target and all its descendants
	ScopeExpandSubtree
)

func (s Scope) String() string {
	switch s {
	case ScopeSelf:
		return "self"
	case ScopeCollapseParentSubtree:
		return "collapse-parent-subtree"
	case ScopeExpandSubtree:
		return "expand-subtree"
	}
	return "unknown"
}

// Engine applies structural commands to a document
type Engine struct {
	doc   *model.Document
	newID func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithIDGenerator replaces the generator used for new sections
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates an engine operating on doc
func NewEngine(doc *model.Document, opts ...Option) *Engine {
	e := &Engine{doc: doc, newID: model.NewID}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Document returns the document the engine operates on
func (e *Engine) Document() *model.Document {
	return e.doc
}

// target resolves id to its section, parent and index among its siblings
type target struct {
	section  *model.Section
	pos      model.Position
	parentID string
	siblings []string
	index    int
}

func (e *Engine) resolve(id string) (target, bool) {
	pos := e.doc.Locate(id)
	if !pos.Found() {
		return target{}, false
	}
	s, _ := e.doc.Section(id)
	parentID, _ := e.doc.ParentOf(id)
	return target{
		section:  s,
		pos:      pos,
		parentID: parentID,
		siblings: e.doc.Children(parentID),
		index:    pos[len(pos)-1],
	}, true
}

// expand clears the collapsed flag and reports whether it was set
func expand(s *model.Section) bool {
	if !s.Collapsed {
		return false
	}
	s.Collapsed = false
	return true
}

func moved(id string, changed ...string) Result {
	return Result{
		Applied:    true,
		Cursor:     Cursor{SectionID: id, Caret: HeadingStart},
		Changed:    changed,
		Structural: true,
	}
}
