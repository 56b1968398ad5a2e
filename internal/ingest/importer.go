// Package ingest turns book files into queued chapter tasks. An import run
// parses each TXT file, upserts the book row, and bulk-upserts its chapters in
// batches, so a re-import of a changed file refreshes the queue in place.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/segmentio/ksuid"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/logger"
	"github.com/anqingli/tingshu/internal/parser"
)

// chapterBatchSize is how many chapters go into one upsert transaction.
// Partial failure retries the batch, not the whole file.
const chapterBatchSize = 200

// BookStore is the slice of the task store the importer needs.
type BookStore interface {
	UpsertBook(ctx context.Context, title, author string, totalChapters int) (int64, error)
	UpsertChapters(ctx context.Context, bookID int64, chapters []domain.Chapter) error
}

type Importer struct {
	store    BookStore
	parser   *parser.BookParser
	manifest *Manifest
	log      *logger.Logger

	// Force re-imports files even when the manifest says they are unchanged.
	Force bool
}

// New creates an importer. manifest may be nil, in which case every file is
// imported unconditionally.
func New(store BookStore, p *parser.BookParser, manifest *Manifest, log *logger.Logger) *Importer {
	return &Importer{
		store:    store,
		parser:   p,
		manifest: manifest,
		log:      log,
	}
}

// ImportDir imports every TXT file under root. Files that fail to parse or
// persist are logged and skipped; the run continues with the rest. Returns the
// number of files imported (skipped-as-unchanged files do not count).
func (imp *Importer) ImportDir(ctx context.Context, root string, limit int) (int, error) {
	files, err := DiscoverBooks(root, limit)
	if err != nil {
		return 0, err
	}

	runID := ksuid.New().String()
	imp.log.Info("import run %s: %d file(s) under %s", runID, len(files), root)

	imported := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		bookID, skipped, err := imp.ImportFile(ctx, file)
		if err != nil {
			imp.log.Error("import run %s: %s failed: %v", runID, file, err)
			continue
		}
		if skipped {
			imp.log.Debug("import run %s: %s unchanged, skipped", runID, file)
			continue
		}
		imp.log.Info("import run %s: %s imported as book %d", runID, file, bookID)
		imported++
	}

	imp.log.Info("import run %s finished: %d imported, %d total", runID, imported, len(files))
	return imported, nil
}

// ImportFile imports a single book file. The second return is true when the
// file was skipped because its content is unchanged since the last import.
func (imp *Importer) ImportFile(ctx context.Context, path string) (int64, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("could not read book file: %w", err)
	}

	hash := ContentHash(raw)
	if imp.manifest != nil && !imp.Force {
		entry, err := imp.manifest.Lookup(ctx, path)
		if err != nil {
			return 0, false, err
		}
		if entry != nil && entry.ContentHash == hash {
			return entry.BookID, true, nil
		}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta, err := imp.parser.Parse(stem, strings.ToValidUTF8(string(raw), ""))
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	imp.log.Info("parsed %q: %d chapter(s)", meta.Title, len(meta.Chapters))

	bookID, err := imp.store.UpsertBook(ctx, meta.Title, meta.Author, len(meta.Chapters))
	if err != nil {
		return 0, false, err
	}

	if err := imp.upsertChapters(ctx, bookID, meta.Chapters); err != nil {
		return 0, false, err
	}

	if imp.manifest != nil {
		err := imp.manifest.Record(ctx, ManifestEntry{
			Path:         path,
			ContentHash:  hash,
			BookID:       bookID,
			ChapterCount: len(meta.Chapters),
			ImportedAt:   time.Now().UTC(),
		})
		if err != nil {
			// The import itself succeeded; a stale manifest only costs a
			// redundant re-import next run.
			imp.log.Warn("could not record manifest entry for %s: %v", path, err)
		}
	}

	return bookID, false, nil
}

// upsertChapters writes chapters in batches, retrying each batch a few times
// before giving up on the file.
func (imp *Importer) upsertChapters(ctx context.Context, bookID int64, chapters []domain.Chapter) error {
	for start := 0; start < len(chapters); start += chapterBatchSize {
		batch := chapters[start:min(start+chapterBatchSize, len(chapters))]

		err := retry.Do(
			func() error { return imp.store.UpsertChapters(ctx, bookID, batch) },
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.OnRetry(func(n uint, err error) {
				imp.log.Warn("chapter batch for book %d failed (attempt %d): %v", bookID, n+1, err)
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert chapters for book %d: %w", bookID, err)
		}
	}
	return nil
}
