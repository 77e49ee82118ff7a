package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pstuifzand/section-outliner/internal/autosave"
)

// Cache backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Cache is a local cache serving the autosave coordinator
type Cache interface {
	autosave.DraftCache
	autosave.QueueStore
	autosave.SequenceStore
	ListDrafts(ctx context.Context) ([]autosave.Draft, error)
	QueuedArticles(ctx context.Context) ([]string, error)
	Close() error
}

var (
	_ Cache = (*FileCache)(nil)
	_ Cache = (*SQLiteCache)(nil)
)

// OpenCache opens the cache backend named by backend below dir. An empty dir
// selects the default cache directory.
func OpenCache(ctx context.Context, backend, dir string) (Cache, error) {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	switch backend {
	case "", BackendFile:
		return NewFileCache(dir)
	case BackendSQLite:
		return OpenSQLiteCache(ctx, filepath.Join(dir, "cache.db"))
	}
	return nil, fmt.Errorf("unknown cache backend %q", backend)
}

// DefaultCacheDir returns ~/.local/share/section-outliner/cache
func DefaultCacheDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", ".section-outliner", "cache")
	}
	return filepath.Join(homeDir, ".local", "share", "section-outliner", "cache")
}
