package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/anqingli/tingshu/internal/app"
)

type StatusController struct {
	App *app.Context
}

// Health reports liveness. It intentionally does not touch the database so a
// degraded store does not flap the process health check.
func (ctrl *StatusController) Health(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// QueueStats returns per-status task counts across all books.
func (ctrl *StatusController) QueueStats(c *echo.Context) error {
	stats, err := ctrl.App.Store.GetQueueStats(c.Request().Context())
	if err != nil {
		ctrl.App.Logger.Error("queue stats query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":      stats.Total(),
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"completed":  stats.Completed,
		"failed":     stats.Failed,
	})
}

// ListBooks returns the book catalog, newest first.
func (ctrl *StatusController) ListBooks(c *echo.Context) error {
	books, err := ctrl.App.Store.ListBooks(c.Request().Context())
	if err != nil {
		ctrl.App.Logger.Error("book list query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "books unavailable"})
	}

	return c.JSON(http.StatusOK, books)
}

// GetBook returns one book plus whether all of its chapters are done.
func (ctrl *StatusController) GetBook(c *echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid book id"})
	}

	book, err := ctrl.App.Store.GetBook(c.Request().Context(), id)
	if err != nil {
		ctrl.App.Logger.Error("book query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "book unavailable"})
	}
	if book == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "book not found"})
	}

	completed, err := ctrl.App.Store.BookCompleted(c.Request().Context(), id)
	if err != nil {
		ctrl.App.Logger.Error("book completion query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "book unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"book":      book,
		"completed": completed,
	})
}
