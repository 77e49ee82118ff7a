package model

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when a document breaks a tree invariant
var ErrInvalidDocument = errors.New("invalid document")

// Validate checks the tree invariants: at least one top-level section, unique
// ids, every arena entry reachable exactly once, heading and body present and
// no section deeper than MaxDepth.
func (d *Document) Validate() error {
	if len(d.roots) == 0 {
		return fmt.Errorf("%w: no top-level section", ErrInvalidDocument)
	}
	seen := make(map[string]bool, len(d.sections))
	var check func(ids []string, depth int) error
	check = func(ids []string, depth int) error {
		for _, id := range ids {
			if seen[id] {
				return fmt.Errorf("%w: duplicate section id %q", ErrInvalidDocument, id)
			}
			seen[id] = true
			s, ok := d.sections[id]
			if !ok {
				return fmt.Errorf("%w: section %q is referenced but missing", ErrInvalidDocument, id)
			}
			if s.ID != id {
				return fmt.Errorf("%w: section %q stored under %q", ErrInvalidDocument, s.ID, id)
			}
			if depth > MaxDepth {
				return fmt.Errorf("%w: section %q is nested %d levels deep (max %d)", ErrInvalidDocument, id, depth, MaxDepth)
			}
			if s.Heading == nil || s.Body == nil {
				return fmt.Errorf("%w: section %q lacks a heading or body", ErrInvalidDocument, id)
			}
			if err := check(s.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(d.roots, 1); err != nil {
		return err
	}
	if len(seen) != len(d.sections) {
		return fmt.Errorf("%w: %d sections are unreachable", ErrInvalidDocument, len(d.sections)-len(seen))
	}
	return nil
}
