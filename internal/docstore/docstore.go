// Package docstore is the authoritative record of clipped documents,
// backed by SQLite. The search indexes are projections of this store:
// anything listed here and not soft-deleted must eventually be indexed,
// which is the contract the integrity scanner enforces.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	clierrors "github.com/clipstash/clipstash/internal/errors"
)

// Document is one clipped document.
type Document struct {
	ID          string
	Title       string
	Content     []byte
	ContentType string
	Tags        []string
	SourceURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventType classifies a change feed event.
type EventType string

const (
	// EventPut is emitted when a document is inserted or replaced.
	EventPut EventType = "put"

	// EventDelete is emitted when a live document is soft-deleted.
	EventDelete EventType = "delete"
)

// Event is one entry in the store's change feed.
type Event struct {
	Type  EventType
	DocID string
	At    time.Time
}

// eventBuffer bounds the change feed. Publishing never blocks a write;
// events past the buffer are dropped, which is fine for consumers that
// treat the feed as a dirty signal rather than a log.
const eventBuffer = 64

// Store persists documents in SQLite.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	events chan Event
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL DEFAULT '',
    content      BLOB NOT NULL,
    content_type TEXT NOT NULL DEFAULT 'text/plain',
    tags         TEXT NOT NULL DEFAULT '[]',
    source_url   TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL,
    deleted_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_deleted ON documents(deleted_at);
`

// Open opens (or creates) a document store. An empty path opens an
// in-memory store, used in tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer keeps SQLite lock contention away entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite; DSN params
	// are not honored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path, events: make(chan Event, eventBuffer)}, nil
}

// Events returns the store's change feed. Every successful Put and
// every effective Delete publishes one event; the channel is closed
// when the store closes. Slow consumers lose events instead of
// blocking writes.
func (s *Store) Events() <-chan Event {
	return s.events
}

// publish is called with s.mu held, so it never races Close.
func (s *Store) publish(typ EventType, docID string) {
	select {
	case s.events <- Event{Type: typ, DocID: docID, At: time.Now().UTC()}:
	default:
	}
}

// Put inserts or replaces a document. CreatedAt is preserved on
// replace; UpdatedAt is always set to now. A replaced document loses
// any soft-delete mark.
func (s *Store) Put(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("document store is closed")
	}
	if doc.ID == "" {
		return clierrors.ValidationError("document ID must not be empty", nil)
	}

	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	now := time.Now().UTC()
	created := doc.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, content_type, tags, source_url, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			content_type = excluded.content_type,
			tags = excluded.tags,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at,
			deleted_at = NULL`,
		doc.ID, doc.Title, doc.Content, doc.ContentType, string(tags), doc.SourceURL,
		created.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put document %s: %w", doc.ID, err)
	}
	s.publish(EventPut, doc.ID)
	return nil
}

// Get returns a document by ID. Soft-deleted documents are not found.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("document store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, content_type, tags, source_url, created_at, updated_at
		FROM documents WHERE id = ? AND deleted_at IS NULL`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, clierrors.New(clierrors.ErrCodeDocumentNotFound,
			fmt.Sprintf("document %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// Delete soft-deletes a document. Idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("document store is closed")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publish(EventDelete, id)
	}
	return nil
}

// ListIDs returns the IDs of all live documents, ordered by ID. This is
// the authoritative set the integrity scanner diffs the indexes against.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("document store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list document IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of live documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("document store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// LastUpdated returns the most recent update time across live
// documents, or the zero time for an empty store.
func (s *Store) LastUpdated(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return time.Time{}, fmt.Errorf("document store is closed")
	}

	var updatedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(updated_at) FROM documents WHERE deleted_at IS NULL`).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last update: %w", err)
	}
	if !updatedAt.Valid {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, updatedAt.String)
}

// Purge hard-deletes documents soft-deleted before the cutoff and
// returns how many rows were removed.
func (s *Store) Purge(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("document store is closed")
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("purge documents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var tags, createdAt, updatedAt string

	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.ContentType,
		&tags, &doc.SourceURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &doc, nil
}
