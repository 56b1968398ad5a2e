package store

import (
	"context"
	"fmt"
)

// QueueStats is a per-status row count snapshot of the task queue.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (q QueueStats) Total() int {
	return q.Pending + q.Processing + q.Completed + q.Failed
}

// GetQueueStats counts tasks by status across all books.
func (s *Store) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, count(*)
		FROM fct_chapter_tasks
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	var stats QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		switch status {
		case "PENDING":
			stats.Pending = count
		case "PROCESSING":
			stats.Processing = count
		case "COMPLETED":
			stats.Completed = count
		case "FAILED":
			stats.Failed = count
		}
	}

	return &stats, rows.Err()
}
