package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anqingli/tingshu/internal/watchdog"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Requeue tasks whose worker stopped heartbeating",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer teardownApp(a)

		wd := watchdog.New(
			a.Store,
			a.Config.Watchdog.ThresholdMinutes,
			a.Config.Watchdog.IntervalSeconds,
			a.Logger,
		)
		return wd.Run(ctx)
	},
}
