// Package api is the read-only status surface of the worker daemon: health,
// queue counts, and the book catalog. It is for operators and dashboards, not
// for driving the pipeline.
package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/anqingli/tingshu/internal/api/controllers"
	"github.com/anqingli/tingshu/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	statusCtrl := &controllers.StatusController{App: app}

	e.GET("/healthz", statusCtrl.Health)
	e.GET("/api/queue/stats", statusCtrl.QueueStats)
	e.GET("/api/books", statusCtrl.ListBooks)
	e.GET("/api/books/:id", statusCtrl.GetBook)
}
