package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anqingli/tingshu/internal/ingest"
	"github.com/anqingli/tingshu/internal/parser"
)

var (
	importManifestPath string
	importForce        bool
	importLimit        int
)

var importCmd = &cobra.Command{
	Use:   "import <file-or-directory>",
	Short: "Parse book files and queue their chapters for synthesis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer teardownApp(a)

		var manifest *ingest.Manifest
		if importManifestPath != "" {
			manifest, err = ingest.OpenManifest(importManifestPath)
			if err != nil {
				return err
			}
			defer manifest.Close()
		}

		imp := ingest.New(a.Store, parser.New(a.Logger), manifest, a.Logger)
		imp.Force = importForce

		target := args[0]
		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("cannot import %s: %w", target, err)
		}

		if info.IsDir() {
			_, err = imp.ImportDir(ctx, target, importLimit)
			return err
		}

		bookID, skipped, err := imp.ImportFile(ctx, target)
		if err != nil {
			return err
		}
		if skipped {
			a.Logger.Info("%s unchanged, nothing to do", target)
			return nil
		}
		a.Logger.Info("%s imported as book %d", target, bookID)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importManifestPath, "manifest", "", "sqlite manifest for skipping unchanged files (optional)")
	importCmd.Flags().BoolVar(&importForce, "force", false, "re-import even when the manifest says a file is unchanged")
	importCmd.Flags().IntVar(&importLimit, "limit", 0, "import at most N files from a directory (0 = all)")
}
