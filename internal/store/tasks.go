package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/anqingli/tingshu/internal/domain"
)

// upsertBatchLimit caps the number of rows per multi-row insert so statements
// stay under the 65535 bind-parameter ceiling with headroom to spare.
const upsertBatchLimit = 500

// UpsertChapters inserts chapter tasks for a book. Chapters that already exist
// (same book_id and chapter_index) get their title and text refreshed and are
// reset to PENDING with a clean retry state, dropping any previous lease or
// audio result. Priority keeps the lower of the existing and imported value.
func (s *Store) UpsertChapters(ctx context.Context, bookID int64, chapters []domain.Chapter) error {
	for start := 0; start < len(chapters); start += upsertBatchLimit {
		end := min(start+upsertBatchLimit, len(chapters))
		if err := s.upsertChapterBatch(ctx, bookID, chapters[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertChapterBatch(ctx context.Context, bookID int64, chapters []domain.Chapter) error {
	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO fct_chapter_tasks (book_id, chapter_index, chapter_title, content_text, priority)
		VALUES `)

	args := make([]any, 0, len(chapters)*3+2)
	args = append(args, bookID, domain.DefaultPriority)
	for i, ch := range chapters {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($1, $%d, $%d, $%d, $2)", len(args)+1, len(args)+2, len(args)+3)
		args = append(args, ch.Index, ch.Title, ch.Content)
	}

	sb.WriteString(`
		ON CONFLICT (book_id, chapter_index) DO UPDATE SET
			chapter_title = EXCLUDED.chapter_title,
			content_text = EXCLUDED.content_text,
			status = 'PENDING',
			priority = LEAST(fct_chapter_tasks.priority, EXCLUDED.priority),
			retry_count = 0,
			next_retry_at = now(),
			locked_by = NULL,
			locked_at = NULL,
			last_heartbeat = NULL,
			audio_url = NULL,
			audio_duration = NULL,
			error_log = NULL`)

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to upsert chapters for book %d: %w", bookID, err)
	}
	return nil
}

// FetchOne atomically claims the next eligible task for the given worker.
// Eligible means PENDING with next_retry_at in the past; among those the
// highest priority wins, ties broken by the oldest retry time. SKIP LOCKED
// makes concurrent workers claim disjoint rows without blocking each other.
// Returns (nil, nil) when the queue is empty.
func (s *Store) FetchOne(ctx context.Context, workerID string) (*domain.ChapterTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin fetch transaction: %w", err)
	}
	defer tx.Rollback()

	var taskID int64
	err = tx.QueryRowContext(ctx, `
		SELECT task_id
		FROM fct_chapter_tasks
		WHERE status = 'PENDING' AND next_retry_at <= now()
		ORDER BY priority DESC, next_retry_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(&taskID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending task: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE fct_chapter_tasks
		SET status = 'PROCESSING',
		    locked_by = $2,
		    locked_at = now(),
		    last_heartbeat = now()
		WHERE task_id = $1`, taskID, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock task %d: %w", taskID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task claim: %w", err)
	}

	return s.GetTask(ctx, taskID)
}

// GetTask returns the task with the given ID, or nil when it does not exist.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*domain.ChapterTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM fct_chapter_tasks WHERE task_id = $1`, taskColumns)

	var dbo chapterTaskDBO
	err := dbo.scan(s.db.QueryRowContext(ctx, query, taskID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", taskID, err)
	}

	return dbo.toDomain(), nil
}

// Heartbeat refreshes the lease on a task. It reports false when the lease is
// no longer held by this worker, which happens after a watchdog reset; the
// caller must abandon the task in that case.
func (s *Store) Heartbeat(ctx context.Context, taskID int64, workerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fct_chapter_tasks
		SET last_heartbeat = now()
		WHERE task_id = $1 AND locked_by = $2`, taskID, workerID)
	if err != nil {
		return false, fmt.Errorf("failed to heartbeat task %d: %w", taskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkCompleted records the audio result and releases the lease.
func (s *Store) MarkCompleted(ctx context.Context, taskID int64, audioURL string, duration *int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE fct_chapter_tasks
		SET status = 'COMPLETED',
		    audio_url = $2,
		    audio_duration = $3,
		    last_heartbeat = now(),
		    error_log = NULL,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE task_id = $1`, taskID, audioURL, nullableInt(duration))
	if err != nil {
		return fmt.Errorf("failed to mark task %d completed: %w", taskID, err)
	}
	return nil
}

// RecordFailure writes the outcome of a failed attempt and releases the lease.
// The caller decides the resulting status and backoff; retryable failures go
// back to PENDING with a future next_retry_at, exhausted ones become FAILED.
func (s *Store) RecordFailure(ctx context.Context, taskID int64, retryCount int, status domain.TaskStatus, nextRetryAt time.Time, errorLog string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE fct_chapter_tasks
		SET status = $2,
		    retry_count = $3,
		    next_retry_at = $4,
		    error_log = $5,
		    locked_by = NULL,
		    locked_at = NULL,
		    last_heartbeat = NULL,
		    audio_url = NULL,
		    audio_duration = NULL
		WHERE task_id = $1`, taskID, string(status), retryCount, nextRetryAt, errorLog)
	if err != nil {
		return fmt.Errorf("failed to record failure for task %d: %w", taskID, err)
	}
	return nil
}

// ResetStaleLeases requeues PROCESSING tasks whose heartbeat is older than the
// cutoff. Tasks that never heartbeated at all (a worker died between claiming
// and the first tick) are caught by their lock time instead. The note is
// appended to the task's error log so the reset is visible in the row history.
// Returns the number of tasks reset.
func (s *Store) ResetStaleLeases(ctx context.Context, cutoff time.Time, note string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fct_chapter_tasks
		SET status = 'PENDING',
		    retry_count = retry_count + 1,
		    next_retry_at = now(),
		    locked_by = NULL,
		    locked_at = NULL,
		    last_heartbeat = NULL,
		    error_log = COALESCE(error_log, '') || $2
		WHERE status = 'PROCESSING'
		  AND (last_heartbeat < $1 OR (last_heartbeat IS NULL AND locked_at < $1))`,
		cutoff, note)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale leases: %w", err)
	}

	return res.RowsAffected()
}

// BookCompleted reports whether every task of a book is COMPLETED.
func (s *Store) BookCompleted(ctx context.Context, bookID int64) (bool, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM fct_chapter_tasks
		WHERE book_id = $1 AND status <> 'COMPLETED'`, bookID).Scan(&remaining)
	if err != nil {
		return false, fmt.Errorf("failed to check book %d completion: %w", bookID, err)
	}
	return remaining == 0, nil
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
