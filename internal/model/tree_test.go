package model

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTree builds:
//
//	a
//	  a1
//	    a1x
//	  a2 (collapsed)
//	    a2x
//	b
//	c
//	  c1
func sampleTree(t *testing.T) *Document {
	t.Helper()
	d, err := Build(
		Node{ID: "a", Heading: "A", Children: []Node{
			{ID: "a1", Heading: "A1", Children: []Node{{ID: "a1x", Heading: "A1X"}}},
			{ID: "a2", Heading: "A2", Collapsed: true, Children: []Node{{ID: "a2x", Heading: "A2X"}}},
		}},
		Node{ID: "b", Heading: "B"},
		Node{ID: "c", Heading: "C", Children: []Node{{ID: "c1", Heading: "C1"}}},
	)
	require.NoError(t, err)
	return d
}

func TestNewDocumentHasOneEmptySection(t *testing.T) {
	d := NewDocument()
	require.Len(t, d.Roots(), 1)
	s, ok := d.Section(d.Roots()[0])
	require.True(t, ok)
	assert.True(t, s.IsEffectivelyEmpty())
	assert.NotNil(t, s.Heading)
	assert.NotNil(t, s.Body)
	assert.NoError(t, d.Validate())
}

func TestLocateAndDepth(t *testing.T) {
	d := sampleTree(t)

	assert.Equal(t, Position{0}, d.Locate("a"))
	assert.Equal(t, Position{0, 1, 0}, d.Locate("a2x"))
	assert.Equal(t, Position{2, 0}, d.Locate("c1"))
	assert.Nil(t, d.Locate("missing"))

	assert.Equal(t, 3, d.DepthOf(d.Locate("a1x")))
	assert.Equal(t, 0, d.DepthOf(Position{9}))
	assert.Equal(t, 0, d.DepthOf(nil))

	s, ok := d.At(Position{0, 1})
	require.True(t, ok)
	assert.Equal(t, "a2", s.ID)
	_, ok = d.At(Position{0, 5})
	assert.False(t, ok)
}

func TestParentOfAndHeight(t *testing.T) {
	d := sampleTree(t)

	p, ok := d.ParentOf("a1x")
	assert.True(t, ok)
	assert.Equal(t, "a1", p)

	p, ok = d.ParentOf("b")
	assert.True(t, ok)
	assert.Equal(t, "", p)

	_, ok = d.ParentOf("nope")
	assert.False(t, ok)

	assert.Equal(t, 3, d.Height("a"))
	assert.Equal(t, 1, d.Height("b"))
	assert.Equal(t, 0, d.Height("nope"))
}

func TestIsVisible(t *testing.T) {
	d := sampleTree(t)

	assert.True(t, d.IsVisible(d.Locate("a2")), "a collapsed section itself is visible")
	assert.False(t, d.IsVisible(d.Locate("a2x")))
	assert.True(t, d.IsVisible(d.Locate("a1x")))
	assert.False(t, d.IsVisible(nil))
}

func TestVisibleTraversalMatchesVisibleOrder(t *testing.T) {
	d := sampleTree(t)
	want := []string{"a", "a1", "a1x", "a2", "b", "c", "c1"}
	require.Equal(t, want, d.VisibleOrder())

	var forward []string
	id := d.Roots()[0]
	for {
		forward = append(forward, id)
		next, ok := d.NextVisible(id)
		if !ok {
			break
		}
		// stepping back must return to where we came from
		back, ok := d.PreviousVisible(next)
		require.True(t, ok)
		require.Equal(t, id, back, "previous of %s", next)
		id = next
	}
	assert.Equal(t, want, forward, spew.Sdump(StructureSnapshot(d)))

	_, ok := d.PreviousVisible("a")
	assert.False(t, ok)
	_, ok = d.NextVisible("a2x")
	assert.False(t, ok, "hidden sections have no visible neighbours")
}

func TestDetachAttachKeepsArena(t *testing.T) {
	d := sampleTree(t)

	parent, idx, ok := d.Detach("a1")
	require.True(t, ok)
	assert.Equal(t, "a", parent)
	assert.Equal(t, 0, idx)
	_, ok = d.Section("a1x")
	assert.True(t, ok, "descendants stay in the arena")

	require.True(t, d.Attach("a1", "c", 99))
	assert.Equal(t, []string{"c1", "a1"}, d.Children("c"))
	assert.NoError(t, d.Validate())
}

func TestRemoveSubtree(t *testing.T) {
	d := sampleTree(t)
	removed := d.RemoveSubtree("a")
	assert.Equal(t, []string{"a", "a1", "a1x", "a2", "a2x"}, removed)
	assert.Equal(t, 3, d.Len())
	assert.NoError(t, d.Validate())

	assert.Nil(t, d.RemoveSubtree("a"))
	assert.False(t, d.RemoveSingle("c"), "sections with children are not removed singly")
	assert.True(t, d.RemoveSingle("c1"))
}

func TestValidateRejectsBrokenTrees(t *testing.T) {
	d := NewDocumentFrom()
	assert.ErrorIs(t, d.Validate(), ErrInvalidDocument)

	var nodes []Node
	cur := &nodes
	for i := 0; i < MaxDepth+1; i++ {
		*cur = []Node{{Heading: "level"}}
		cur = &(*cur)[0].Children
	}
	_, err := Build(nodes...)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Build(Node{ID: "x"}, Node{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestStructureSnapshot(t *testing.T) {
	d := sampleTree(t)
	nodes := StructureSnapshot(d)
	require.Len(t, nodes, d.Len())

	assert.Equal(t, "a", nodes[0].SectionID)
	assert.Nil(t, nodes[0].ParentID)
	assert.Equal(t, "a2", nodes[3].SectionID)
	assert.Equal(t, "a", nodes[3].Parent())
	assert.Equal(t, 1, nodes[3].Position)
	assert.True(t, nodes[3].Collapsed)
}

func TestFindSections(t *testing.T) {
	d := MustBuild(
		Node{ID: "p", Heading: "Project plan"},
		Node{ID: "m", Heading: "Meeting notes", Children: []Node{{ID: "pn", Heading: "Planning"}}},
	)
	matches := FindSections(d, "plan")
	require.Len(t, matches, 2)
	byID := map[string]Match{}
	for _, m := range matches {
		byID[m.SectionID] = m
	}
	require.Contains(t, byID, "p")
	require.Contains(t, byID, "pn")
	assert.Equal(t, Position{1, 0}, byID["pn"].Position)
	assert.Equal(t, "Planning", byID["pn"].Heading)

	assert.Empty(t, FindSections(d, "   "))
	assert.Empty(t, FindSections(d, "zzz"))
}
