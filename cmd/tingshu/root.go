package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anqingli/tingshu/internal/app"
	"github.com/anqingli/tingshu/internal/infra/config"
	"github.com/anqingli/tingshu/internal/infra/logger"
	"github.com/anqingli/tingshu/internal/store"
)

var (
	cfgFile  string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "tingshu",
	Short: "Audiobook synthesis pipeline for TXT book libraries",
	Long: `Tingshu converts a library of plain-text books into per-chapter MP3
audio. Books are parsed into chapters and queued as tasks in Postgres;
worker processes claim tasks under a heartbeat lease, synthesize audio
through a TTS service, and upload the result to S3. A watchdog requeues
tasks whose worker has gone silent.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(initdbCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig builds the configuration from the env file, the environment, and
// the optional yaml config.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// setupApp wires the shared resources: config, logger, store. The caller owns
// the returned context and must Close it.
func setupApp(ctx context.Context) (*app.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DB.DSN())
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("store unavailable: %w", err)
	}

	return app.NewContext(cfg, log, st), nil
}

func teardownApp(a *app.Context) {
	a.Store.Close()
	a.Logger.Close()
}
