package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/anqingli/tingshu/internal/api"
	"github.com/anqingli/tingshu/internal/app"
	"github.com/anqingli/tingshu/internal/storage"
	"github.com/anqingli/tingshu/internal/tts"
	"github.com/anqingli/tingshu/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a synthesis worker that claims and processes chapter tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer teardownApp(a)

		synth, err := tts.NewClient(a.Config.TTS, a.Logger)
		if err != nil {
			return err
		}

		audioStore, err := storage.New(a.Config.S3)
		if err != nil {
			return err
		}

		processor := worker.NewProcessor(
			a.Store, synth, audioStore,
			a.Config.Worker.ID,
			a.Config.Worker.MaxRetries,
			a.Config.Worker.GPULimit,
			a.Config.Worker.HeartbeatInterval,
			a.Logger,
		)
		w := worker.New(a.Store, processor, a.Config.Worker.ID, a.Logger)

		if a.Config.API.Port != "" {
			srv := startStatusAPI(a)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		return w.Run(ctx)
	},
}

// startStatusAPI serves the read-only status endpoints in the background.
func startStatusAPI(a *app.Context) *http.Server {
	e := echo.New()
	api.RegisterRoutes(e, a)

	srv := &http.Server{
		Addr:    ":" + a.Config.API.Port,
		Handler: e,
	}

	go func() {
		a.Logger.Info("status api listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("status api stopped: %v", err)
		}
	}()

	return srv
}
