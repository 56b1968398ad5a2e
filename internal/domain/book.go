package domain

import "time"

// Book is a dim_books row: one imported source file's identity. Title is the
// business key, so re-importing the same book updates rather than duplicates.
type Book struct {
	BookID        int64     `json:"book_id"`
	Title         string    `json:"title"`
	Author        string    `json:"author,omitempty"`
	TotalChapters int       `json:"total_chapters"`
	CreatedAt     time.Time `json:"created_at"`
}

// Chapter is one parsed segment of a book, before it becomes a task.
type Chapter struct {
	Index   int
	Title   string
	Content string
}

// BookMeta is the parser's output: header metadata plus the ordered chapters.
type BookMeta struct {
	Title    string
	Author   string
	Chapters []Chapter
}
