package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anqingli/tingshu/internal/domain"
)

// UpsertBook inserts a book or, when the title already exists, refreshes its
// author and chapter count. The title is the business key so re-importing a
// revised source file lands on the same book row.
func (s *Store) UpsertBook(ctx context.Context, title, author string, totalChapters int) (int64, error) {
	query := `
		INSERT INTO dim_books (title, author, total_chapters)
		VALUES ($1, $2, $3)
		ON CONFLICT (title) DO UPDATE
			SET author = EXCLUDED.author,
			    total_chapters = EXCLUDED.total_chapters
		RETURNING book_id`

	var bookID int64
	err := s.db.QueryRowContext(ctx, query, title, nullIfEmpty(author), totalChapters).Scan(&bookID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert book %q: %w", title, err)
	}

	return bookID, nil
}

// GetBook returns the book with the given ID, or nil when it does not exist.
func (s *Store) GetBook(ctx context.Context, bookID int64) (*domain.Book, error) {
	query := `
		SELECT book_id, title, author, total_chapters, created_at
		FROM dim_books
		WHERE book_id = $1`

	var dbo bookDBO
	err := s.db.QueryRowContext(ctx, query, bookID).
		Scan(&dbo.BookID, &dbo.Title, &dbo.Author, &dbo.TotalChapters, &dbo.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book %d: %w", bookID, err)
	}

	return dbo.toDomain(), nil
}

// ListBooks returns all books, newest first.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	query := `
		SELECT book_id, title, author, total_chapters, created_at
		FROM dim_books
		ORDER BY created_at DESC, book_id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		var dbo bookDBO
		if err := rows.Scan(&dbo.BookID, &dbo.Title, &dbo.Author, &dbo.TotalChapters, &dbo.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, dbo.toDomain())
	}

	return books, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
