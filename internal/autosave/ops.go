package autosave

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pstuifzand/section-outliner/internal/model"
)

// Kind is the type of a persistence operation
type Kind string

const (
	KindSaveDoc           Kind = "save_doc"
	KindSectionContent    Kind = "save_section_content"
	KindStructureSnapshot Kind = "structure_snapshot"
)

// QueuedOperation is a save that could not complete immediately. Operations
// with the same coalesce key replace each other.
type QueuedOperation struct {
	Kind        Kind            `json:"kind"`
	ArticleID   string          `json:"articleId"`
	SectionID   string          `json:"sectionId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CoalesceKey string          `json:"coalesceKey"`
	QueuedAt    time.Time       `json:"queuedAt"`
}

// DocumentPayload is the payload of a save_doc operation
type DocumentPayload struct {
	Document          json.RawMessage `json:"document"`
	StaleVersionHours int             `json:"staleVersionHours"`
}

// SectionPayload is the payload of a save_section_content operation
type SectionPayload struct {
	Heading model.InlineContent `json:"heading"`
	Body    model.BlockContent  `json:"body"`
	Seq     int64               `json:"seq"`
}

// StructurePayload is the payload of a structure_snapshot operation
type StructurePayload struct {
	Nodes []model.StructureNode `json:"nodes"`
}

// CoalesceKey returns the key under which an operation replaces older ones
func CoalesceKey(kind Kind, articleID, sectionID string) string {
	if kind == KindSectionContent {
		return string(kind) + ":" + articleID + ":" + sectionID
	}
	return string(kind) + ":" + articleID
}

func newOperation(kind Kind, articleID, sectionID string, payload any, now time.Time) (QueuedOperation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return QueuedOperation{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return QueuedOperation{
		Kind:        kind,
		ArticleID:   articleID,
		SectionID:   sectionID,
		Payload:     data,
		CoalesceKey: CoalesceKey(kind, articleID, sectionID),
		QueuedAt:    now,
	}, nil
}

// Supersedes reports whether delivering op makes q unnecessary: same key, or
// op is a full document save of the same article
func Supersedes(op, q QueuedOperation) bool {
	if op.ArticleID != q.ArticleID {
		return false
	}
	return op.CoalesceKey == q.CoalesceKey || op.Kind == KindSaveDoc
}

// Coalesce adds op to a queue, dropping every entry it supersedes
func Coalesce(queue []QueuedOperation, op QueuedOperation) []QueuedOperation {
	out := make([]QueuedOperation, 0, len(queue)+1)
	for _, q := range queue {
		if Supersedes(op, q) {
			continue
		}
		out = append(out, q)
	}
	return append(out, op)
}

// SortForDelivery orders operations so a full document goes first and the
// tree shape is known before section content arrives
func SortForDelivery(ops []QueuedOperation) {
	rank := map[Kind]int{KindSaveDoc: 0, KindStructureSnapshot: 1, KindSectionContent: 2}
	sort.SliceStable(ops, func(i, j int) bool {
		if rank[ops[i].Kind] != rank[ops[j].Kind] {
			return rank[ops[i].Kind] < rank[ops[j].Kind]
		}
		return ops[i].QueuedAt.Before(ops[j].QueuedAt)
	})
}

// Deliver hands a single operation to the persister
func Deliver(ctx context.Context, p Persister, op QueuedOperation) (Outcome, error) {
	switch op.Kind {
	case KindSaveDoc:
		var payload DocumentPayload
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return 0, fmt.Errorf("decode %s payload: %w", op.Kind, err)
		}
		return p.SaveFullDocument(ctx, op.ArticleID, payload.Document, payload.StaleVersionHours)
	case KindSectionContent:
		var payload SectionPayload
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return 0, fmt.Errorf("decode %s payload: %w", op.Kind, err)
		}
		return p.SaveSectionContent(ctx, op.ArticleID, op.SectionID, payload.Heading, payload.Body, payload.Seq)
	case KindStructureSnapshot:
		var payload StructurePayload
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return 0, fmt.Errorf("decode %s payload: %w", op.Kind, err)
		}
		return p.SaveStructureSnapshot(ctx, op.ArticleID, payload.Nodes)
	}
	return 0, fmt.Errorf("unknown operation kind %q", op.Kind)
}
