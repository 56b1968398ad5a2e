package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/logger"
	"github.com/anqingli/tingshu/internal/tts"
)

type fakeStore struct {
	mu            sync.Mutex
	heartbeatHeld bool

	completedTaskID int64
	completedURL    string
	completedDur    *int

	failedTaskID  int64
	failedRetries int
	failedStatus  domain.TaskStatus
	failedNextAt  time.Time
	failedErrLog  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{heartbeatHeld: true}
}

func (f *fakeStore) Heartbeat(ctx context.Context, taskID int64, workerID string) (bool, error) {
	return f.heartbeatHeld, nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, taskID int64, audioURL string, duration *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedTaskID = taskID
	f.completedURL = audioURL
	f.completedDur = duration
	return nil
}

func (f *fakeStore) completedID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completedTaskID
}

func (f *fakeStore) RecordFailure(ctx context.Context, taskID int64, retryCount int, status domain.TaskStatus, nextRetryAt time.Time, errorLog string) error {
	f.failedTaskID = taskID
	f.failedRetries = retryCount
	f.failedStatus = status
	f.failedNextAt = nextRetryAt
	f.failedErrLog = errorLog
	return nil
}

type fakeSynth struct {
	result *tts.Result
	err    error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	return f.result, f.err
}

type fakeStorage struct {
	uploadErr error
	uploaded  []byte
}

func (f *fakeStorage) Upload(ctx context.Context, bookID int64, chapterIndex int, audio []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = audio
	return "audio/ab/1/1.mp3", nil
}

func (f *fakeStorage) PresignedURL(key string) (string, error) {
	return "https://s3.example.com/" + key + "?sig=x", nil
}

func testProcessor(t *testing.T, store *fakeStore, synth Synthesizer, storage AudioStorage, maxRetries int) *Processor {
	t.Helper()
	log, err := logger.New("", logger.LevelError)
	require.NoError(t, err)
	return NewProcessor(store, synth, storage, "worker-test", maxRetries, 2, 60, log)
}

func testTask() *domain.ChapterTask {
	return &domain.ChapterTask{
		TaskID:       7,
		BookID:       1,
		ChapterIndex: 1,
		ContentText:  "章节正文",
		Status:       domain.StatusProcessing,
	}
}

func TestProcessSuccess(t *testing.T) {
	store := newFakeStore()
	storage := &fakeStorage{}
	dur := 120
	synth := &fakeSynth{result: &tts.Result{Audio: []byte("mp3"), Duration: &dur}}

	p := testProcessor(t, store, synth, storage, 5)
	err := p.Process(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, int64(7), store.completedTaskID)
	assert.Equal(t, "https://s3.example.com/audio/ab/1/1.mp3?sig=x", store.completedURL)
	require.NotNil(t, store.completedDur)
	assert.Equal(t, 120, *store.completedDur)
	assert.Equal(t, []byte("mp3"), storage.uploaded)
}

func TestProcessSynthesisFailureSchedulesRetry(t *testing.T) {
	store := newFakeStore()
	synth := &fakeSynth{err: errors.New("tts down")}

	p := testProcessor(t, store, synth, &fakeStorage{}, 5)

	before := time.Now().UTC()
	err := p.Process(context.Background(), testTask())
	require.Error(t, err)

	assert.Equal(t, int64(7), store.failedTaskID)
	assert.Equal(t, 1, store.failedRetries)
	assert.Equal(t, domain.StatusPending, store.failedStatus)
	assert.Equal(t, "tts down", store.failedErrLog)

	// first retry backs off 2^1 minutes
	assert.WithinDuration(t, before.Add(2*time.Minute), store.failedNextAt, 5*time.Second)
}

func TestProcessExhaustedRetriesFails(t *testing.T) {
	store := newFakeStore()
	synth := &fakeSynth{err: errors.New("tts down")}

	p := testProcessor(t, store, synth, &fakeStorage{}, 5)

	task := testTask()
	task.RetryCount = 4
	err := p.Process(context.Background(), task)
	require.Error(t, err)

	assert.Equal(t, 5, store.failedRetries)
	assert.Equal(t, domain.StatusFailed, store.failedStatus)
	assert.WithinDuration(t, time.Now().UTC(), store.failedNextAt, 5*time.Second)
}

func TestProcessUploadFailureSchedulesRetry(t *testing.T) {
	store := newFakeStore()
	synth := &fakeSynth{result: &tts.Result{Audio: []byte("mp3")}}
	storage := &fakeStorage{uploadErr: errors.New("bucket gone")}

	p := testProcessor(t, store, synth, storage, 5)
	err := p.Process(context.Background(), testTask())
	require.Error(t, err)

	assert.Equal(t, domain.StatusPending, store.failedStatus)
	assert.Equal(t, "bucket gone", store.failedErrLog)
}

func TestProcessTruncatesLongErrors(t *testing.T) {
	store := newFakeStore()
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	synth := &fakeSynth{err: errors.New(string(long))}

	p := testProcessor(t, store, synth, &fakeStorage{}, 5)
	_ = p.Process(context.Background(), testTask())

	assert.Len(t, store.failedErrLog, domain.MaxErrorLogLength)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Minute, backoff(1))
	assert.Equal(t, 4*time.Minute, backoff(2))
	assert.Equal(t, 32*time.Minute, backoff(5))
	assert.Equal(t, 60*time.Minute, backoff(6))
	assert.Equal(t, 60*time.Minute, backoff(40))
}

func TestHeartbeatLostFlips(t *testing.T) {
	store := newFakeStore()
	store.heartbeatHeld = false

	hb := NewHeartbeat(store, 1, "worker-test", 10*time.Millisecond)
	hb.Start(context.Background())

	assert.Eventually(t, hb.Lost, time.Second, 5*time.Millisecond)
	hb.Stop()
}

type blockedHeartbeatStore struct {
	release chan struct{}
}

func (b *blockedHeartbeatStore) Heartbeat(ctx context.Context, taskID int64, workerID string) (bool, error) {
	<-b.release
	return true, nil
}

func TestHeartbeatStopBoundedByInterval(t *testing.T) {
	store := &blockedHeartbeatStore{release: make(chan struct{})}
	defer close(store.release)

	hb := NewHeartbeat(store, 1, "worker-test", 50*time.Millisecond)
	hb.Start(context.Background())

	// let a beat fire and block inside the store
	time.Sleep(75 * time.Millisecond)

	start := time.Now()
	hb.Stop()
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHeartbeatStops(t *testing.T) {
	store := newFakeStore()

	hb := NewHeartbeat(store, 1, "worker-test", 10*time.Millisecond)
	hb.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	hb.Stop()

	assert.False(t, hb.Lost())
}
