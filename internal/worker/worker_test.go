package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/logger"
	"github.com/anqingli/tingshu/internal/tts"
)

type fakeFetcher struct {
	tasks   chan *domain.ChapterTask
	fetched atomic.Int32
}

func (f *fakeFetcher) FetchOne(ctx context.Context, workerID string) (*domain.ChapterTask, error) {
	f.fetched.Add(1)
	select {
	case task := <-f.tasks:
		return task, nil
	default:
		return nil, nil
	}
}

func TestWorkerProcessesClaimedTasks(t *testing.T) {
	store := newFakeStore()
	synth := &fakeSynth{result: &tts.Result{Audio: []byte("mp3")}}
	p := testProcessor(t, store, synth, &fakeStorage{}, 5)

	fetcher := &fakeFetcher{tasks: make(chan *domain.ChapterTask, 1)}
	fetcher.tasks <- testTask()

	log, err := logger.New("", logger.LevelError)
	require.NoError(t, err)

	w := New(fetcher, p, "worker-test", log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return store.completedID() == 7
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}

	assert.GreaterOrEqual(t, fetcher.fetched.Load(), int32(1))
}

type blockingSynth struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSynth) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	close(s.started)
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tts.Result{Audio: []byte("mp3")}, nil
}

func TestWorkerFinishesClaimedTaskOnShutdown(t *testing.T) {
	store := newFakeStore()
	synth := &blockingSynth{started: make(chan struct{}), release: make(chan struct{})}
	p := testProcessor(t, store, synth, &fakeStorage{}, 5)

	fetcher := &fakeFetcher{tasks: make(chan *domain.ChapterTask, 1)}
	fetcher.tasks <- testTask()

	log, err := logger.New("", logger.LevelError)
	require.NoError(t, err)
	w := New(fetcher, p, "worker-test", log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// shutdown arrives while the task is mid-synthesis
	<-synth.started
	cancel()
	close(synth.release)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after finishing the task")
	}

	// the in-flight task completed; no spurious retry was recorded
	assert.Equal(t, int64(7), store.completedID())
	assert.Zero(t, store.failedRetries)
}
