package store

import (
	"database/sql"
	"time"

	"github.com/anqingli/tingshu/internal/domain"
)

// chapterTaskDBO mirrors a fct_chapter_tasks row. Nullable columns are mapped
// through sql.Null types here and flattened once in toDomain.
type chapterTaskDBO struct {
	TaskID        int64
	BookID        int64
	ChapterIndex  int
	ChapterTitle  string
	ContentText   string
	Status        string
	Priority      int
	RetryCount    int
	NextRetryAt   time.Time
	LockedBy      sql.NullString
	LockedAt      sql.NullTime
	LastHeartbeat sql.NullTime
	AudioURL      sql.NullString
	AudioDuration sql.NullInt64
	ErrorLog      sql.NullString
}

const taskColumns = `task_id, book_id, chapter_index, chapter_title, content_text,
	status, priority, retry_count, next_retry_at,
	locked_by, locked_at, last_heartbeat,
	audio_url, audio_duration, error_log`

func (dbo *chapterTaskDBO) scan(row interface{ Scan(...any) error }) error {
	return row.Scan(
		&dbo.TaskID, &dbo.BookID, &dbo.ChapterIndex, &dbo.ChapterTitle, &dbo.ContentText,
		&dbo.Status, &dbo.Priority, &dbo.RetryCount, &dbo.NextRetryAt,
		&dbo.LockedBy, &dbo.LockedAt, &dbo.LastHeartbeat,
		&dbo.AudioURL, &dbo.AudioDuration, &dbo.ErrorLog,
	)
}

func (dbo *chapterTaskDBO) toDomain() *domain.ChapterTask {
	task := &domain.ChapterTask{
		TaskID:       dbo.TaskID,
		BookID:       dbo.BookID,
		ChapterIndex: dbo.ChapterIndex,
		ChapterTitle: dbo.ChapterTitle,
		ContentText:  dbo.ContentText,
		Status:       domain.TaskStatus(dbo.Status),
		Priority:     dbo.Priority,
		RetryCount:   dbo.RetryCount,
		NextRetryAt:  dbo.NextRetryAt,
		LockedBy:     dbo.LockedBy.String,
		AudioURL:     dbo.AudioURL.String,
		ErrorLog:     dbo.ErrorLog.String,
	}
	if dbo.LockedAt.Valid {
		t := dbo.LockedAt.Time
		task.LockedAt = &t
	}
	if dbo.LastHeartbeat.Valid {
		t := dbo.LastHeartbeat.Time
		task.LastHeartbeat = &t
	}
	if dbo.AudioDuration.Valid {
		d := int(dbo.AudioDuration.Int64)
		task.AudioDuration = &d
	}
	return task
}

type bookDBO struct {
	BookID        int64
	Title         string
	Author        sql.NullString
	TotalChapters int
	CreatedAt     time.Time
}

func (dbo *bookDBO) toDomain() *domain.Book {
	return &domain.Book{
		BookID:        dbo.BookID,
		Title:         dbo.Title,
		Author:        dbo.Author.String,
		TotalChapters: dbo.TotalChapters,
		CreatedAt:     dbo.CreatedAt,
	}
}
