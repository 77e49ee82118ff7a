package autosave

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pstuifzand/section-outliner/internal/dirty"
	"github.com/pstuifzand/section-outliner/internal/model"
)

// Capture is the state of a document at the moment a save starts
type Capture struct {
	ArticleID  string
	Generation uint64
	// Document is a private copy; the live tree keeps changing
	Document *model.Document
	Marks    dirty.Capture
	// Encrypted documents are only ever saved whole
	Encrypted bool
	HasKey    bool
}

// Skipped reports whether nothing may be sent for this capture at all
func (c Capture) Skipped() bool {
	return c.Encrypted && !c.HasKey
}

// Plan turns a capture into the operations to deliver, in order.
//
// A deleted section cannot be expressed by a structure snapshot, so any
// deletion sends the whole document, as does every save of an encrypted
// document. Otherwise a changed shape is sent as a snapshot followed by the
// content of each dirty section tagged with its next sequence number.
func Plan(ctx context.Context, c Capture, seqs SequenceStore, staleVersionHours int, now time.Time) ([]QueuedOperation, error) {
	if c.Skipped() {
		return nil, nil
	}
	if c.Encrypted || len(c.Marks.Deleted) > 0 {
		doc, err := json.Marshal(c.Document)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		op, err := newOperation(KindSaveDoc, c.ArticleID, "", DocumentPayload{
			Document:          doc,
			StaleVersionHours: staleVersionHours,
		}, now)
		if err != nil {
			return nil, err
		}
		return []QueuedOperation{op}, nil
	}

	var ops []QueuedOperation
	if c.Marks.StructureChanged {
		op, err := newOperation(KindStructureSnapshot, c.ArticleID, "", StructurePayload{
			Nodes: model.StructureSnapshot(c.Document),
		}, now)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	for _, id := range c.Marks.Dirty {
		s, ok := c.Document.Section(id)
		if !ok {
			continue
		}
		seq, err := seqs.NextSequence(ctx, c.ArticleID, id)
		if err != nil {
			return nil, fmt.Errorf("next sequence for %s: %w", id, err)
		}
		op, err := newOperation(KindSectionContent, c.ArticleID, id, SectionPayload{
			Heading: s.Heading,
			Body:    s.Body,
			Seq:     seq,
		}, now)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
