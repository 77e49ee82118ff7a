package model

import (
	"fmt"
	"io"
	"strconv"
)

// StructureNode describes where a section sits in the tree, independent of
// its content
type StructureNode struct {
	SectionID string  `json:"sectionId"`
	ParentID  *string `json:"parentId"`
	Position  int     `json:"position"`
	Collapsed bool    `json:"collapsed"`
}

// Parent returns the parent id, empty for top-level sections
func (n StructureNode) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// StructureSnapshot flattens the tree shape in document order
func StructureSnapshot(d *Document) []StructureNode {
	nodes := make([]StructureNode, 0, d.Len())
	var walk func(ids []string, parent *string)
	walk = func(ids []string, parent *string) {
		for i, id := range ids {
			s, ok := d.sections[id]
			if !ok {
				continue
			}
			nodes = append(nodes, StructureNode{
				SectionID: id,
				ParentID:  parent,
				Position:  i,
				Collapsed: s.Collapsed,
			})
			pid := id
			walk(s.Children, &pid)
		}
	}
	walk(d.roots, nil)
	return nodes
}

// WriteStructureText writes a snapshot in a line-oriented form suitable for
// diffing:
//
//	[STRUCTURE SECTION]
//	id: parent_id:position[:collapsed]
func WriteStructureText(w io.Writer, nodes []StructureNode) error {
	if _, err := io.WriteString(w, "[STRUCTURE SECTION]\n"); err != nil {
		return err
	}
	for _, n := range nodes {
		line := n.SectionID + ": " + n.Parent() + ":" + strconv.Itoa(n.Position)
		if n.Collapsed {
			line += ":collapsed"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
