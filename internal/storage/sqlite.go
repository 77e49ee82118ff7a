package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pstuifzand/section-outliner/internal/autosave"
)

// SQLiteCache keeps drafts, queued operations and sequence numbers in a
// single SQLite database
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens (and migrates) the cache database at path
func OpenSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the per-connection pragmas in force.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteCache{db: db}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
			article_id TEXT PRIMARY KEY,
			content_json TEXT NOT NULL,
			queued_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id TEXT NOT NULL,
			coalesce_key TEXT NOT NULL,
			kind TEXT NOT NULL,
			section_id TEXT NOT NULL DEFAULT '',
			payload_json TEXT NOT NULL,
			queued_at_unixms INTEGER NOT NULL,
			UNIQUE(article_id, coalesce_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_article ON queue(article_id, id);`,
		`CREATE TABLE IF NOT EXISTS sequences (
			article_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			PRIMARY KEY(article_id, section_id)
		);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate cache: %w", err)
		}
	}
	return nil
}

func (c *SQLiteCache) ReadDraft(ctx context.Context, articleID string) (autosave.Draft, bool, error) {
	var content string
	var ms int64
	err := c.db.QueryRowContext(ctx,
		`SELECT content_json, queued_at_unixms FROM drafts WHERE article_id = ?`, articleID,
	).Scan(&content, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return autosave.Draft{}, false, nil
	}
	if err != nil {
		return autosave.Draft{}, false, fmt.Errorf("read draft: %w", err)
	}
	return autosave.Draft{
		ArticleID: articleID,
		Content:   json.RawMessage(content),
		QueuedAt:  time.UnixMilli(ms).UTC(),
	}, true, nil
}

func (c *SQLiteCache) WriteDraft(ctx context.Context, articleID string, content json.RawMessage, queuedAt time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO drafts(article_id, content_json, queued_at_unixms) VALUES(?, ?, ?)`,
		articleID, string(content), queuedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

func (c *SQLiteCache) ClearDraft(ctx context.Context, articleID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM drafts WHERE article_id = ?`, articleID); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// ListDrafts returns every cached draft, oldest first
func (c *SQLiteCache) ListDrafts(ctx context.Context) ([]autosave.Draft, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT article_id, content_json, queued_at_unixms FROM drafts ORDER BY queued_at_unixms, article_id`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()
	var drafts []autosave.Draft
	for rows.Next() {
		var d autosave.Draft
		var content string
		var ms int64
		if err := rows.Scan(&d.ArticleID, &content, &ms); err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		d.Content = json.RawMessage(content)
		d.QueuedAt = time.UnixMilli(ms).UTC()
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// Enqueue stores op, dropping every queued operation it supersedes
func (c *SQLiteCache) Enqueue(ctx context.Context, op autosave.QueuedOperation) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if op.Kind == autosave.KindSaveDoc {
		_, err = tx.ExecContext(ctx, `DELETE FROM queue WHERE article_id = ?`, op.ArticleID)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM queue WHERE article_id = ? AND coalesce_key = ?`, op.ArticleID, op.CoalesceKey)
	}
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO queue(article_id, coalesce_key, kind, section_id, payload_json, queued_at_unixms) VALUES(?, ?, ?, ?, ?, ?)`,
		op.ArticleID, op.CoalesceKey, string(op.Kind), op.SectionID, string(op.Payload), op.QueuedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return tx.Commit()
}

func (c *SQLiteCache) Pending(ctx context.Context, articleID string) ([]autosave.QueuedOperation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT coalesce_key, kind, section_id, payload_json, queued_at_unixms FROM queue WHERE article_id = ? ORDER BY id`,
		articleID)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	defer rows.Close()
	var ops []autosave.QueuedOperation
	for rows.Next() {
		op := autosave.QueuedOperation{ArticleID: articleID}
		var kind, payload string
		var ms int64
		if err := rows.Scan(&op.CoalesceKey, &kind, &op.SectionID, &payload, &ms); err != nil {
			return nil, fmt.Errorf("read queue: %w", err)
		}
		op.Kind = autosave.Kind(kind)
		op.Payload = json.RawMessage(payload)
		op.QueuedAt = time.UnixMilli(ms).UTC()
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (c *SQLiteCache) Remove(ctx context.Context, articleID string, keys ...string) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE article_id = ? AND coalesce_key = ?`, articleID, k); err != nil {
			return fmt.Errorf("remove queued operation: %w", err)
		}
	}
	return tx.Commit()
}

// QueuedArticles returns the ids of documents with pending operations
func (c *SQLiteCache) QueuedArticles(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT article_id FROM queue ORDER BY article_id`)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("read queue: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *SQLiteCache) NextSequence(ctx context.Context, articleID, sectionID string) (int64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO sequences(article_id, section_id, seq) VALUES(?, ?, 1)
		ON CONFLICT(article_id, section_id) DO UPDATE SET seq = seq + 1
		RETURNING seq`,
		articleID, sectionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

// Close closes the database
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
