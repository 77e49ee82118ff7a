package model

import "fmt"

// Node is a plain-text literal of a section subtree. Empty IDs are generated.
type Node struct {
	ID        string
	Heading   string
	Body      []string
	Collapsed bool
	Children  []Node
}

// Build creates a document from literal nodes. An empty node list yields a
// document with one empty section.
func Build(nodes ...Node) (*Document, error) {
	if len(nodes) == 0 {
		return NewDocument(), nil
	}
	d := newEmptyDocument()
	var add func(n Node, parentID string) error
	add = func(n Node, parentID string) error {
		s := NewSection(Text(n.Heading), Paragraphs(n.Body...))
		if n.ID != "" {
			s.ID = n.ID
		}
		s.Collapsed = n.Collapsed
		if !d.Insert(s, parentID, len(d.Children(parentID))) {
			return fmt.Errorf("%w: duplicate section id %q", ErrInvalidDocument, s.ID)
		}
		for _, c := range n.Children {
			if err := add(c, s.ID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range nodes {
		if err := add(n, ""); err != nil {
			return nil, err
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustBuild is like Build but panics on error. Intended for fixtures.
func MustBuild(nodes ...Node) *Document {
	d, err := Build(nodes...)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDocumentFrom creates a document whose top level holds the given sections.
// Child lists are reset; descendants are added with Insert afterwards. With no
// sections the document is not valid until one is inserted.
func NewDocumentFrom(sections ...*Section) *Document {
	d := newEmptyDocument()
	for _, s := range sections {
		s.Children = []string{}
		d.Insert(s, "", len(d.roots))
	}
	return d
}
