package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer teardownApp(a)

		if err := a.Store.RunMigrations(); err != nil {
			return err
		}
		a.Logger.Info("database schema is up to date")
		return nil
	},
}
