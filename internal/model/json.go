package model

import (
	"encoding/json"
	"fmt"
)

// record is the persisted form of a section
type record struct {
	ID        string        `json:"id"`
	Collapsed bool          `json:"collapsed"`
	Heading   InlineContent `json:"heading"`
	Body      BlockContent  `json:"body"`
	Children  []record      `json:"children"`
}

type documentFile struct {
	Sections []record `json:"sections"`
}

// MarshalJSON encodes the document as nested section records
func (d *Document) MarshalJSON() ([]byte, error) {
	var build func(ids []string) []record
	build = func(ids []string) []record {
		out := make([]record, 0, len(ids))
		for _, id := range ids {
			s, ok := d.sections[id]
			if !ok {
				continue
			}
			heading := s.Heading
			if heading == nil {
				heading = InlineContent{}
			}
			body := s.Body
			if body == nil {
				body = BlockContent{}
			}
			out = append(out, record{
				ID:        s.ID,
				Collapsed: s.Collapsed,
				Heading:   heading,
				Body:      body,
				Children:  build(s.Children),
			})
		}
		return out
	}
	return json.Marshal(documentFile{Sections: build(d.roots)})
}

// UnmarshalJSON decodes nested section records and validates the result
func (d *Document) UnmarshalJSON(data []byte) error {
	var file documentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	doc := newEmptyDocument()
	var load func(recs []record, parentID string) error
	load = func(recs []record, parentID string) error {
		for _, r := range recs {
			if r.ID == "" {
				return fmt.Errorf("%w: section without id", ErrInvalidDocument)
			}
			s := &Section{
				ID:        r.ID,
				Collapsed: r.Collapsed,
				Heading:   r.Heading,
				Body:      r.Body,
			}
			if !doc.Insert(s, parentID, len(doc.Children(parentID))) {
				return fmt.Errorf("%w: duplicate section id %q", ErrInvalidDocument, r.ID)
			}
			if err := load(r.Children, r.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := load(file.Sections, ""); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	*d = *doc
	return nil
}

// ParseDocument decodes a persisted document
func ParseDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
