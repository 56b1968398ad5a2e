package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/logger"
	"github.com/anqingli/tingshu/internal/tts"
)

// maxBackoff caps the retry delay regardless of how many attempts a task has
// burned through.
const maxBackoff = 60 * time.Minute

// ProcessorStore is the slice of the task store the processor needs.
type ProcessorStore interface {
	HeartbeatStore
	MarkCompleted(ctx context.Context, taskID int64, audioURL string, duration *int) error
	RecordFailure(ctx context.Context, taskID int64, retryCount int, status domain.TaskStatus, nextRetryAt time.Time, errorLog string) error
}

// Synthesizer renders chapter text to MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*tts.Result, error)
}

// AudioStorage persists finished audio and mints playback URLs.
type AudioStorage interface {
	Upload(ctx context.Context, bookID int64, chapterIndex int, audio []byte) (string, error)
	PresignedURL(key string) (string, error)
}

// Processor executes one claimed task end to end: synthesize, upload, record.
// A weighted semaphore bounds how many syntheses run at once, since each one
// occupies a slot on the GPU behind the TTS service.
type Processor struct {
	store             ProcessorStore
	tts               Synthesizer
	storage           AudioStorage
	sem               *semaphore.Weighted
	workerID          string
	maxRetries        int
	heartbeatInterval time.Duration
	log               *logger.Logger
}

func NewProcessor(store ProcessorStore, synth Synthesizer, storage AudioStorage, workerID string, maxRetries, gpuLimit, heartbeatSeconds int, log *logger.Logger) *Processor {
	return &Processor{
		store:             store,
		tts:               synth,
		storage:           storage,
		sem:               semaphore.NewWeighted(int64(gpuLimit)),
		workerID:          workerID,
		maxRetries:        maxRetries,
		heartbeatInterval: time.Duration(heartbeatSeconds) * time.Second,
		log:               log,
	}
}

// Process runs a claimed task to completion or failure. The task's lease is
// kept alive by a heartbeat for the duration; if the lease is lost mid-flight
// the result is discarded rather than written over the new owner's work.
func (p *Processor) Process(ctx context.Context, task *domain.ChapterTask) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.log.Info("worker %s processing task %d (book %d chapter %d)",
		p.workerID, task.TaskID, task.BookID, task.ChapterIndex)

	hb := NewHeartbeat(p.store, task.TaskID, p.workerID, p.heartbeatInterval)
	hb.Start(ctx)
	defer hb.Stop()

	audioURL, duration, err := p.produce(ctx, task)
	if err != nil {
		p.log.Error("task %d failed: %v", task.TaskID, err)
		return p.recordFailure(ctx, task, err)
	}

	if hb.Lost() {
		p.log.Warn("task %d lease lost, discarding result", task.TaskID)
		return domain.ErrLeaseLost
	}

	if err := p.store.MarkCompleted(ctx, task.TaskID, audioURL, duration); err != nil {
		return fmt.Errorf("failed to complete task %d: %w", task.TaskID, err)
	}

	p.log.Info("task %d completed", task.TaskID)
	return nil
}

func (p *Processor) produce(ctx context.Context, task *domain.ChapterTask) (string, *int, error) {
	result, err := p.tts.Synthesize(ctx, task.ContentText)
	if err != nil {
		return "", nil, err
	}

	key, err := p.storage.Upload(ctx, task.BookID, task.ChapterIndex, result.Audio)
	if err != nil {
		return "", nil, err
	}

	audioURL, err := p.storage.PresignedURL(key)
	if err != nil {
		return "", nil, err
	}

	return audioURL, result.Duration, nil
}

// recordFailure applies the retry policy: exponential backoff in minutes,
// capped at maxBackoff, until maxRetries attempts are spent, then FAILED.
func (p *Processor) recordFailure(ctx context.Context, task *domain.ChapterTask, cause error) error {
	retries := task.RetryCount + 1

	status := domain.StatusPending
	nextRetryAt := time.Now().UTC()
	if retries >= p.maxRetries {
		status = domain.StatusFailed
	} else {
		nextRetryAt = nextRetryAt.Add(backoff(retries))
	}

	errLog := domain.TruncateError(cause.Error())
	if err := p.store.RecordFailure(ctx, task.TaskID, retries, status, nextRetryAt, errLog); err != nil {
		return fmt.Errorf("failed to record failure for task %d: %w", task.TaskID, err)
	}
	return cause
}

func backoff(retries int) time.Duration {
	if retries >= 6 {
		return maxBackoff
	}
	return min(time.Duration(1<<retries)*time.Minute, maxBackoff)
}
