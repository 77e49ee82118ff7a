// Package legacy converts documents stored in older flat layouts into the
// nested section tree
package legacy

import (
	"fmt"

	"github.com/pstuifzand/section-outliner/internal/model"
)

// BlockSectionHeading marks the start of a section in the flat layout. Its
// inline content is the heading; attrs.level gives the nesting level.
const BlockSectionHeading = "section_heading"

// Converter turns a flat block list into a section tree
type Converter struct {
	// NewID generates ids for sections whose marker carries none
	NewID func() string
}

// NewConverter creates a converter using model.NewID
func NewConverter() *Converter {
	return &Converter{NewID: model.NewID}
}

// Convert builds the section tree. Blocks before the first marker become the
// body of an untitled first section. A level deeper than one below the
// current section is clamped, as is any level beyond model.MaxDepth.
func (c *Converter) Convert(blocks []model.Block) (*model.Document, error) {
	if len(blocks) == 0 {
		return model.NewDocument(), nil
	}
	newID := c.NewID
	if newID == nil {
		newID = model.NewID
	}

	doc := model.NewDocumentFrom()
	var stack []*model.Section // current section at each level
	used := map[string]bool{}

	add := func(s *model.Section, level int) error {
		if level > len(stack)+1 {
			level = len(stack) + 1
		}
		stack = stack[:level-1]
		parentID := ""
		if len(stack) > 0 {
			parentID = stack[len(stack)-1].ID
		}
		if !doc.Insert(s, parentID, len(doc.Children(parentID))) {
			return fmt.Errorf("%w: cannot place section %q", model.ErrInvalidDocument, s.ID)
		}
		used[s.ID] = true
		stack = append(stack, s)
		return nil
	}

	for _, blk := range blocks {
		if blk.Type != BlockSectionHeading {
			if len(stack) == 0 {
				untitled := model.NewSection(nil, nil)
				untitled.ID = markerID(model.Block{}, used, newID)
				if err := add(untitled, 1); err != nil {
					return nil, err
				}
			}
			cur := stack[len(stack)-1]
			cur.Body = append(cur.Body, model.BlockContent{blk}.Clone()...)
			continue
		}

		s := model.NewSection(model.InlineContent(blk.Content), nil)
		s.ID = markerID(blk, used, newID)
		s.Collapsed, _ = blk.Attrs["collapsed"].(bool)
		if err := add(s, markerLevel(blk)); err != nil {
			return nil, err
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// markerLevel reads attrs.level, clamped to 1..model.MaxDepth
func markerLevel(blk model.Block) int {
	level := 1
	switch v := blk.Attrs["level"].(type) {
	case float64:
		level = int(v)
	case int:
		level = v
	case int64:
		level = int(v)
	}
	if level < 1 {
		level = 1
	}
	if level > model.MaxDepth {
		level = model.MaxDepth
	}
	return level
}

// markerID keeps the id stored on a marker unless it is missing or taken
func markerID(blk model.Block, used map[string]bool, newID func() string) string {
	if id, ok := blk.Attrs["id"].(string); ok && id != "" && !used[id] {
		return id
	}
	for {
		id := newID()
		if !used[id] {
			return id
		}
	}
}
