package jobs_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/jobs"
	"songfactory/internal/logging"
	"songfactory/internal/testsupport"
)

func TestStopDuringDownloadFinishesTheSong(t *testing.T) {
	audio := testsupport.NewSlowAudio(t, audioSize)
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	streaming := testsupport.NewRecord(t, store, "Streaming")
	later := testsupport.NewRecord(t, store, "Left Queued")

	transport := &scriptedTransport{doc: map[string]any{
		"status":      "COMPLETED",
		"audio_url_1": audio.URL + "/slow.mp3",
	}}
	factory := func(*config.Config, string, *slog.Logger) (jobs.Transport, error) { return transport, nil }
	runner := jobs.NewRunner(cfg, logging.NewNop(), jobs.WithTransportFactory(factory))
	events, cancel := runner.Events().Subscribe(32)
	defer cancel()

	_, err := runner.Start(context.Background(), jobs.RunOptions{})
	require.NoError(t, err)
	waitFor(t, events, jobs.EventAwaitingConfirmation)
	runner.Confirm()

	select {
	case <-audio.Streaming:
	case <-time.After(10 * time.Second):
		t.Fatal("download never started")
	}
	runner.Stop()
	audio.Release()

	finished := waitFor(t, events, jobs.EventRunFinished)
	assert.Equal(t, "stopped", finished.Message)
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelWait()
	require.NoError(t, runner.Wait(waitCtx))

	got, err := store.GetByID(context.Background(), streaming.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCompleted, got.Status, got.Notes)
	assert.FileExists(t, got.FilePath1)
	assert.Equal(t, int64(audioSize), got.FileSize1)

	untouched, err := store.GetByID(context.Background(), later.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusQueued, untouched.Status)
	assert.Equal(t, int32(1), transport.submitted.Load())
}

func TestRunLockKeepsAnotherRunnersRecordInFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecord(t, store, "Held By Serve")

	transport := &scriptedTransport{}
	factory := func(*config.Config, string, *slog.Logger) (jobs.Transport, error) { return transport, nil }
	first := jobs.NewRunner(cfg, logging.NewNop(), jobs.WithTransportFactory(factory))
	events, cancel := first.Events().Subscribe(32)
	defer cancel()

	_, err := first.Start(context.Background(), jobs.RunOptions{})
	require.NoError(t, err)
	waitFor(t, events, jobs.EventAwaitingConfirmation)

	second := jobs.NewRunner(cfg, logging.NewNop(), jobs.WithTransportFactory(factory))
	_, err = second.Run(context.Background(), jobs.RunOptions{})
	require.ErrorIs(t, err, jobs.ErrAlreadyRunning)

	pending, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusAwaitingConfirmation, pending.Status, "the refused run must not reset in-flight records")

	first.Stop()
	waitFor(t, events, jobs.EventRunFinished)
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelWait()
	require.NoError(t, first.Wait(waitCtx))

	_, err = second.Run(context.Background(), jobs.RunOptions{DryRun: true})
	assert.NoError(t, err, "the lock is released when the first run ends")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartLogsBackgroundRunFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRecord(t, store, "No Transport")

	var logs lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	factory := func(*config.Config, string, *slog.Logger) (jobs.Transport, error) {
		return nil, errors.New("chrome not found")
	}
	runner := jobs.NewRunner(cfg, logger, jobs.WithTransportFactory(factory))
	events, cancel := runner.Events().Subscribe(32)
	defer cancel()

	runID, err := runner.Start(context.Background(), jobs.RunOptions{})
	require.NoError(t, err)
	finished := waitFor(t, events, jobs.EventRunFinished)
	assert.Contains(t, finished.Message, "chrome not found")

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelWait()
	require.NoError(t, runner.Wait(waitCtx))

	var failure string
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, `"background run failed"`) {
			failure = line
		}
	}
	require.NotEmpty(t, failure, logs.String())
	assert.Contains(t, failure, `"event_type":"run_failed"`)
	assert.Contains(t, failure, runID)
	assert.Contains(t, failure, "chrome not found")
}
