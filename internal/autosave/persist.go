package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pstuifzand/section-outliner/internal/model"
)

var (
	// ErrSaveInFlight is returned when a save is requested while another one
	// for the same document has not resolved yet. The request is remembered
	// and runs once the current save finishes.
	ErrSaveInFlight = errors.New("save already in flight")
)

// Outcome is the result of a delivered operation
type Outcome int

const (
	// Delivered means the remote store accepted the change
	Delivered Outcome = iota
	// QueuedOffline means the transport accepted the change but holds it
	// until it can reach the remote store
	QueuedOffline
)

func (o Outcome) String() string {
	if o == QueuedOffline {
		return "queued-offline"
	}
	return "delivered"
}

// Persister is the remote side of persistence. Every call is idempotent by
// sequence number or coalesce key, so retried delivery is safe.
type Persister interface {
	SaveStructureSnapshot(ctx context.Context, articleID string, nodes []model.StructureNode) (Outcome, error)
	SaveSectionContent(ctx context.Context, articleID, sectionID string, heading model.InlineContent, body model.BlockContent, seq int64) (Outcome, error)
	SaveFullDocument(ctx context.Context, articleID string, doc json.RawMessage, staleVersionHours int) (Outcome, error)
}

// Draft is a locally cached copy of a document that could not be saved
type Draft struct {
	ArticleID string          `json:"articleId"`
	Content   json.RawMessage `json:"content"`
	QueuedAt  time.Time       `json:"queuedAt"`
}

// DraftCache keeps one draft per document
type DraftCache interface {
	ReadDraft(ctx context.Context, articleID string) (Draft, bool, error)
	WriteDraft(ctx context.Context, articleID string, content json.RawMessage, queuedAt time.Time) error
	ClearDraft(ctx context.Context, articleID string) error
}

// QueueStore keeps operations waiting for delivery. Enqueue coalesces.
type QueueStore interface {
	Enqueue(ctx context.Context, op QueuedOperation) error
	Pending(ctx context.Context, articleID string) ([]QueuedOperation, error)
	Remove(ctx context.Context, articleID string, keys ...string) error
}

// SequenceStore hands out per-section sequence numbers that only grow
type SequenceStore interface {
	NextSequence(ctx context.Context, articleID, sectionID string) (int64, error)
}

// Logger is the logging interface used by the coordinator
type Logger interface {
	Printf(format string, args ...any)
}
