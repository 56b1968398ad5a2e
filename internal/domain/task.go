package domain

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusProcessing TaskStatus = "PROCESSING"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusFailed     TaskStatus = "FAILED"
)

// DefaultPriority is assigned to freshly imported chapters. Re-imports keep
// the lower of the existing and the new priority.
const DefaultPriority = 10

// MaxErrorLogLength bounds what gets persisted into error_log, in characters.
const MaxErrorLogLength = 1000

// ChapterTask is the queue element: one chapter's worth of synthesis work in
// fct_chapter_tasks. (book_id, chapter_index) is the business key; the lease
// triple (LockedBy, LockedAt, LastHeartbeat) marks exclusive ownership while
// the task is PROCESSING.
type ChapterTask struct {
	TaskID       int64  `json:"task_id"`
	BookID       int64  `json:"book_id"`
	ChapterIndex int    `json:"chapter_index"`
	ChapterTitle string `json:"chapter_title"`
	ContentText  string `json:"-"`

	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	RetryCount  int        `json:"retry_count"`
	NextRetryAt time.Time  `json:"next_retry_at"`

	LockedBy      string     `json:"locked_by,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	AudioURL      string `json:"audio_url,omitempty"`
	AudioDuration *int   `json:"audio_duration,omitempty"`
	ErrorLog      string `json:"error_log,omitempty"`
}

// Terminal reports whether the task can never be fetched again.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TruncateError bounds an error message to MaxErrorLogLength characters for
// storage. Cutting on a rune boundary keeps the result valid UTF-8, which the
// database requires of text columns.
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) > MaxErrorLogLength {
		return string(runes[:MaxErrorLogLength])
	}
	return msg
}
