package model

// Position is the path of child indices from the top level to a section.
// A nil Position means the section was not found.
type Position []int

// Found reports whether the position addresses a section
func (p Position) Found() bool {
	return len(p) > 0
}

// Depth returns the nesting level of the position (top level is 1)
func (p Position) Depth() int {
	return len(p)
}

// Locate finds the position of a section. It returns nil when the id is not
// in the document.
func (d *Document) Locate(id string) Position {
	if _, ok := d.sections[id]; !ok {
		return nil
	}
	var path Position
	var search func(ids []string) bool
	search = func(ids []string) bool {
		for i, cid := range ids {
			path = append(path, i)
			if cid == id {
				return true
			}
			if s, ok := d.sections[cid]; ok && search(s.Children) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if !search(d.roots) {
		return nil
	}
	return path
}

// At returns the section at a position
func (d *Document) At(pos Position) (*Section, bool) {
	if !pos.Found() {
		return nil, false
	}
	ids := d.roots
	var s *Section
	for _, idx := range pos {
		if idx < 0 || idx >= len(ids) {
			return nil, false
		}
		var ok bool
		s, ok = d.sections[ids[idx]]
		if !ok {
			return nil, false
		}
		ids = s.Children
	}
	return s, true
}

// DepthOf returns the depth of the section at pos, or 0 when pos does not
// address a section
func (d *Document) DepthOf(pos Position) int {
	if _, ok := d.At(pos); !ok {
		return 0
	}
	return pos.Depth()
}

// IsVisible reports whether no strict ancestor of the section at pos is
// collapsed. Unknown positions are not visible.
func (d *Document) IsVisible(pos Position) bool {
	if _, ok := d.At(pos); !ok {
		return false
	}
	for i := 1; i < len(pos); i++ {
		anc, _ := d.At(pos[:i])
		if anc.Collapsed {
			return false
		}
	}
	return true
}

// ParentOf returns the id of the parent section; the empty id means the
// section is at the top level. ok is false when the section is unknown.
func (d *Document) ParentOf(id string) (parentID string, ok bool) {
	pos := d.Locate(id)
	if !pos.Found() {
		return "", false
	}
	if len(pos) == 1 {
		return "", true
	}
	parent, _ := d.At(pos[:len(pos)-1])
	return parent.ID, true
}

// IndexOf returns the index of a section among its siblings
func (d *Document) IndexOf(id string) int {
	pos := d.Locate(id)
	if !pos.Found() {
		return -1
	}
	return pos[len(pos)-1]
}

// Height returns the number of levels in the subtree rooted at id (a leaf has
// height 1)
func (d *Document) Height(id string) int {
	s, ok := d.sections[id]
	if !ok {
		return 0
	}
	h := 0
	for _, c := range s.Children {
		if ch := d.Height(c); ch > h {
			h = ch
		}
	}
	return h + 1
}

// Walk visits every section in document order. Returning false from fn skips
// the subtree below that section.
func (d *Document) Walk(fn func(s *Section, depth int) bool) {
	var walk func(ids []string, depth int)
	walk = func(ids []string, depth int) {
		for _, id := range ids {
			s, ok := d.sections[id]
			if !ok {
				continue
			}
			if fn(s, depth) {
				walk(s.Children, depth+1)
			}
		}
	}
	walk(d.roots, 1)
}

// Order returns all section ids in depth-first document order
func (d *Document) Order() []string {
	ids := make([]string, 0, len(d.sections))
	d.Walk(func(s *Section, _ int) bool {
		ids = append(ids, s.ID)
		return true
	})
	return ids
}

// Subtree returns id and all its descendants in document order
func (d *Document) Subtree(id string) []string {
	s, ok := d.sections[id]
	if !ok {
		return nil
	}
	ids := []string{id}
	for _, c := range s.Children {
		ids = append(ids, d.Subtree(c)...)
	}
	return ids
}

// VisibleOrder returns the ids a reader sees: document order without the
// subtrees below collapsed sections
func (d *Document) VisibleOrder() []string {
	ids := make([]string, 0, len(d.sections))
	d.Walk(func(s *Section, _ int) bool {
		ids = append(ids, s.ID)
		return !s.Collapsed
	})
	return ids
}

// NextVisible returns the section following id in visible order
func (d *Document) NextVisible(id string) (string, bool) {
	pos := d.Locate(id)
	if !d.IsVisible(pos) {
		return "", false
	}
	s, _ := d.At(pos)
	if !s.Collapsed && len(s.Children) > 0 {
		return s.Children[0], true
	}
	// climb until an ancestor has a next sibling
	for len(pos) > 0 {
		last := len(pos) - 1
		siblings := d.roots
		if last > 0 {
			parent, _ := d.At(pos[:last])
			siblings = parent.Children
		}
		if pos[last]+1 < len(siblings) {
			return siblings[pos[last]+1], true
		}
		pos = pos[:last]
	}
	return "", false
}

// PreviousVisible returns the section preceding id in visible order
func (d *Document) PreviousVisible(id string) (string, bool) {
	pos := d.Locate(id)
	if !d.IsVisible(pos) {
		return "", false
	}
	last := len(pos) - 1
	if pos[last] == 0 {
		if last == 0 {
			return "", false
		}
		parent, _ := d.At(pos[:last])
		return parent.ID, true
	}
	siblings := d.roots
	if last > 0 {
		parent, _ := d.At(pos[:last])
		siblings = parent.Children
	}
	// deepest visible last descendant of the previous sibling
	cur := d.sections[siblings[pos[last]-1]]
	for !cur.Collapsed && len(cur.Children) > 0 {
		cur = d.sections[cur.Children[len(cur.Children)-1]]
	}
	return cur.ID, true
}
