package autosave

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps drafts, queued operations and sequence numbers in
// memory. It serves documents opened without a local cache.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
	queues map[string][]QueuedOperation
	seqs   map[string]int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts: make(map[string]Draft),
		queues: make(map[string][]QueuedOperation),
		seqs:   make(map[string]int64),
	}
}

func (m *MemoryStore) ReadDraft(_ context.Context, articleID string) (Draft, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[articleID]
	return d, ok, nil
}

func (m *MemoryStore) WriteDraft(_ context.Context, articleID string, content json.RawMessage, queuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[articleID] = Draft{
		ArticleID: articleID,
		Content:   append(json.RawMessage(nil), content...),
		QueuedAt:  queuedAt,
	}
	return nil
}

func (m *MemoryStore) ClearDraft(_ context.Context, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, articleID)
	return nil
}

func (m *MemoryStore) Enqueue(_ context.Context, op QueuedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[op.ArticleID] = Coalesce(m.queues[op.ArticleID], op)
	return nil
}

func (m *MemoryStore) Pending(_ context.Context, articleID string) ([]QueuedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]QueuedOperation(nil), m.queues[articleID]...), nil
}

func (m *MemoryStore) Remove(_ context.Context, articleID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	var kept []QueuedOperation
	for _, op := range m.queues[articleID] {
		if !drop[op.CoalesceKey] {
			kept = append(kept, op)
		}
	}
	if len(kept) == 0 {
		delete(m.queues, articleID)
		return nil
	}
	m.queues[articleID] = kept
	return nil
}

func (m *MemoryStore) NextSequence(_ context.Context, articleID, sectionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := articleID + ":" + sectionID
	m.seqs[key]++
	return m.seqs[key], nil
}
