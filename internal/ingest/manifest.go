package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"
)

// Manifest is a local sqlite ledger of imported files. It lets repeated runs
// over the same library directory skip files whose content has not changed,
// without a round trip to Postgres per file.
type Manifest struct {
	db *sql.DB
}

// ManifestEntry records one imported file: where it was, what its content
// hashed to, and what book it became.
type ManifestEntry struct {
	Path         string
	ContentHash  string
	BookID       int64
	ChapterCount int
	ImportedAt   time.Time
}

const manifestSchema = `
	CREATE TABLE IF NOT EXISTS imported_files (
		path          TEXT PRIMARY KEY,
		content_hash  TEXT NOT NULL,
		book_id       INTEGER NOT NULL,
		chapter_count INTEGER NOT NULL,
		imported_at   TIMESTAMP NOT NULL
	)`

// OpenManifest opens (creating if needed) the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open import manifest: %w", err)
	}

	if _, err := db.Exec(manifestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize import manifest: %w", err)
	}

	return &Manifest{db: db}, nil
}

func (m *Manifest) Close() error {
	return m.db.Close()
}

// Lookup returns the manifest entry for path, or nil when the file has never
// been imported.
func (m *Manifest) Lookup(ctx context.Context, path string) (*ManifestEntry, error) {
	var e ManifestEntry
	err := m.db.QueryRowContext(ctx, `
		SELECT path, content_hash, book_id, chapter_count, imported_at
		FROM imported_files
		WHERE path = ?`, path).
		Scan(&e.Path, &e.ContentHash, &e.BookID, &e.ChapterCount, &e.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up manifest entry: %w", err)
	}
	return &e, nil
}

// Record upserts the manifest entry for a freshly imported file.
func (m *Manifest) Record(ctx context.Context, e ManifestEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO imported_files (path, content_hash, book_id, chapter_count, imported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			content_hash = excluded.content_hash,
			book_id = excluded.book_id,
			chapter_count = excluded.chapter_count,
			imported_at = excluded.imported_at`,
		e.Path, e.ContentHash, e.BookID, e.ChapterCount, e.ImportedAt)
	if err != nil {
		return fmt.Errorf("failed to record manifest entry: %w", err)
	}
	return nil
}

// ContentHash fingerprints raw file bytes for change detection.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
