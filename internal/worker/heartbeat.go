package worker

import (
	"context"
	"sync/atomic"
	"time"
)

// HeartbeatStore is the slice of the task store the heartbeat needs.
type HeartbeatStore interface {
	Heartbeat(ctx context.Context, taskID int64, workerID string) (bool, error)
}

// Heartbeat keeps a task's lease fresh from a background goroutine while the
// worker synthesizes. If a beat touches zero rows the lease has been taken
// away (watchdog reset) and Lost flips permanently.
type Heartbeat struct {
	store    HeartbeatStore
	taskID   int64
	workerID string
	interval time.Duration

	lost atomic.Bool
	stop chan struct{}
	done chan struct{}
}

func NewHeartbeat(store HeartbeatStore, taskID int64, workerID string, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		store:    store,
		taskID:   taskID,
		workerID: workerID,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (h *Heartbeat) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop ends the heartbeat loop and waits up to one interval for it to exit.
// A beat stuck in a hung store call must not stall the caller's exit path.
func (h *Heartbeat) Stop() {
	close(h.stop)
	select {
	case <-h.done:
	case <-time.After(h.interval):
	}
}

// Lost reports whether the lease was observed gone on any beat.
func (h *Heartbeat) Lost() bool {
	return h.lost.Load()
}

func (h *Heartbeat) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := h.store.Heartbeat(ctx, h.taskID, h.workerID)
			if err != nil {
				// Transient DB errors are survivable: the next beat retries,
				// and the watchdog threshold leaves room for several misses.
				continue
			}
			if !held {
				h.lost.Store(true)
				return
			}
		}
	}
}
