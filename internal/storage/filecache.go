package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/pstuifzand/section-outliner/internal/autosave"
)

const (
	draftsDir    = "drafts"
	queueDir     = "queue"
	sequencesDir = "sequences"
)

// FileCache keeps drafts, queued operations and sequence numbers as plain
// files below one directory:
//
//	drafts/<article>.json     one draft per document
//	queue/<article>.json      pending operations, oldest first
//	sequences/<article>.toml  last sequence number per section
type FileCache struct {
	dir string
	mu  sync.Mutex
}

// queueFile is the on-disk form of a queue
type queueFile struct {
	Operations []autosave.QueuedOperation `json:"operations"`
}

// sequenceFile is the on-disk form of the sequence counters of a document
type sequenceFile struct {
	Sections map[string]int64 `toml:"sections"`
}

// NewFileCache creates a file cache rooted at dir
func NewFileCache(dir string) (*FileCache, error) {
	for _, sub := range []string{draftsDir, queueDir, sequencesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	return &FileCache{dir: dir}, nil
}

// fileName maps an article id to a file name that cannot escape its directory
func fileName(articleID, ext string) string {
	return url.PathEscape(articleID) + ext
}

func articleFromFile(name, ext string) (string, bool) {
	id, err := url.PathUnescape(strings.TrimSuffix(name, ext))
	if err != nil || !strings.HasSuffix(name, ext) {
		return "", false
	}
	return id, true
}

func (c *FileCache) path(sub, articleID, ext string) string {
	return filepath.Join(c.dir, sub, fileName(articleID, ext))
}

func (c *FileCache) ReadDraft(_ context.Context, articleID string) (autosave.Draft, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readDraftLocked(c.path(draftsDir, articleID, ".json"))
}

func (c *FileCache) readDraftLocked(path string) (autosave.Draft, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return autosave.Draft{}, false, nil
		}
		return autosave.Draft{}, false, fmt.Errorf("failed to read draft: %w", err)
	}
	var d autosave.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return autosave.Draft{}, false, fmt.Errorf("failed to parse draft %s: %w", path, err)
	}
	return d, true, nil
}

func (c *FileCache) WriteDraft(_ context.Context, articleID string, content json.RawMessage, queuedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.MarshalIndent(autosave.Draft{
		ArticleID: articleID,
		Content:   content,
		QueuedAt:  queuedAt.UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	return writeFileAtomic(c.path(draftsDir, articleID, ".json"), data)
}

func (c *FileCache) ClearDraft(_ context.Context, articleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.path(draftsDir, articleID, ".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove draft: %w", err)
	}
	return nil
}

// ListDrafts returns every cached draft, oldest first
func (c *FileCache) ListDrafts(_ context.Context) ([]autosave.Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(filepath.Join(c.dir, draftsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read drafts directory: %w", err)
	}
	var drafts []autosave.Draft
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		d, ok, err := c.readDraftLocked(filepath.Join(c.dir, draftsDir, entry.Name()))
		if err != nil || !ok {
			continue // skip unreadable drafts
		}
		drafts = append(drafts, d)
	}
	slices.SortFunc(drafts, func(a, b autosave.Draft) int {
		return a.QueuedAt.Compare(b.QueuedAt)
	})
	return drafts, nil
}

func (c *FileCache) Enqueue(_ context.Context, op autosave.QueuedOperation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops, err := c.loadQueueLocked(op.ArticleID)
	if err != nil {
		return err
	}
	return c.saveQueueLocked(op.ArticleID, autosave.Coalesce(ops, op))
}

func (c *FileCache) Pending(_ context.Context, articleID string) ([]autosave.QueuedOperation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadQueueLocked(articleID)
}

func (c *FileCache) Remove(_ context.Context, articleID string, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops, err := c.loadQueueLocked(articleID)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(ops, func(op autosave.QueuedOperation) bool {
		return slices.Contains(keys, op.CoalesceKey)
	})
	return c.saveQueueLocked(articleID, kept)
}

// QueuedArticles returns the ids of documents with pending operations
func (c *FileCache) QueuedArticles(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(filepath.Join(c.dir, queueDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		id, ok := articleFromFile(entry.Name(), ".json")
		if entry.IsDir() || !ok {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (c *FileCache) loadQueueLocked(articleID string) ([]autosave.QueuedOperation, error) {
	data, err := os.ReadFile(c.path(queueDir, articleID, ".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	var file queueFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse queue: %w", err)
	}
	return file.Operations, nil
}

func (c *FileCache) saveQueueLocked(articleID string, ops []autosave.QueuedOperation) error {
	path := c.path(queueDir, articleID, ".json")
	if len(ops) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove queue: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(queueFile{Operations: ops})
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}
	return writeFileAtomic(path, data)
}

func (c *FileCache) NextSequence(_ context.Context, articleID, sectionID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.path(sequencesDir, articleID, ".toml")

	file := sequenceFile{Sections: map[string]int64{}}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &file); err != nil {
			return 0, fmt.Errorf("failed to parse sequences: %w", err)
		}
		if file.Sections == nil {
			file.Sections = map[string]int64{}
		}
	case !os.IsNotExist(err):
		return 0, fmt.Errorf("failed to read sequences: %w", err)
	}

	file.Sections[sectionID]++
	next := file.Sections[sectionID]

	out, err := toml.Marshal(file)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal sequences: %w", err)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return 0, err
	}
	return next, nil
}

// Close releases nothing; files are written through on every call
func (c *FileCache) Close() error {
	return nil
}
