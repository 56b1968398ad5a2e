// Package watchdog requeues tasks whose worker has gone silent. A task in
// PROCESSING whose heartbeat is older than the threshold is assumed orphaned
// (worker crash, network partition, OOM kill) and is put back to PENDING so
// another worker can claim it.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/anqingli/tingshu/internal/infra/logger"
)

// Store is the slice of the task store the watchdog needs.
type Store interface {
	ResetStaleLeases(ctx context.Context, cutoff time.Time, note string) (int64, error)
}

type Watchdog struct {
	store     Store
	threshold time.Duration
	interval  time.Duration
	log       *logger.Logger
}

func New(store Store, thresholdMinutes, intervalSeconds int, log *logger.Logger) *Watchdog {
	return &Watchdog{
		store:     store,
		threshold: time.Duration(thresholdMinutes) * time.Minute,
		interval:  time.Duration(intervalSeconds) * time.Second,
		log:       log,
	}
}

// Run sweeps on the configured interval until the context is cancelled. One
// sweep runs immediately on start.
func (w *Watchdog) Run(ctx context.Context) error {
	w.log.Info("watchdog started: threshold %s, interval %s", w.threshold, w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("sweep failed: %v", err)
		}

		select {
		case <-ctx.Done():
			w.log.Info("watchdog stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep resets every lease whose heartbeat predates now minus the threshold.
func (w *Watchdog) Sweep(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-w.threshold)
	note := fmt.Sprintf("\nReset by Watchdog at %s", now.Format(time.RFC3339))

	reset, err := w.store.ResetStaleLeases(ctx, cutoff, note)
	if err != nil {
		return err
	}

	if reset > 0 {
		w.log.Warn("reset %d stale task(s) older than %s", reset, cutoff.Format(time.RFC3339))
	}
	return nil
}
