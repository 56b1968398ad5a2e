// Package worker is the pull loop of the pipeline. Each worker process claims
// chapter tasks from the store one at a time, synthesizes audio for them, and
// records the result. Workers coordinate only through the database.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/logger"
)

// FetchStore is the claim surface of the task store.
type FetchStore interface {
	FetchOne(ctx context.Context, workerID string) (*domain.ChapterTask, error)
}

// Worker polls the queue and hands claimed tasks to the processor.
type Worker struct {
	store     FetchStore
	processor *Processor
	workerID  string
	log       *logger.Logger
}

func New(store FetchStore, processor *Processor, workerID string, log *logger.Logger) *Worker {
	return &Worker{
		store:     store,
		processor: processor,
		workerID:  workerID,
		log:       log,
	}
}

// Run polls until the context is cancelled. An empty queue or a fetch error
// is followed by a short randomized sleep so a worker fleet does not hammer
// the database in lockstep.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker %s started", w.workerID)

	for {
		if err := ctx.Err(); err != nil {
			w.log.Info("worker %s stopping", w.workerID)
			return nil
		}

		task, err := w.store.FetchOne(ctx, w.workerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.log.Error("fetch failed: %v", err)
			w.idle(ctx)
			continue
		}
		if task == nil {
			w.idle(ctx)
			continue
		}

		// A claimed task runs to completion even during shutdown; the signal
		// context is only consulted between tasks. The synthesis HTTP calls
		// bound themselves with their own timeouts.
		if err := w.processor.Process(context.WithoutCancel(ctx), task); err != nil {
			// Process records the failure itself; the error here is for the
			// log only.
			w.log.Debug("task %d ended with error: %v", task.TaskID, err)
		}
	}
}

// idle sleeps between 0.5s and 2s, context permitting.
func (w *Worker) idle(ctx context.Context) {
	delay := 500*time.Millisecond + time.Duration(rand.Int63n(int64(1500*time.Millisecond)))
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
