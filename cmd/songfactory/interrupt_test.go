package main

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSignals(ch chan os.Signal) func() (<-chan os.Signal, func()) {
	return func() (<-chan os.Signal, func()) { return ch, func() {} }
}

func TestFirstInterruptStopsWithoutCancelling(t *testing.T) {
	parent, interrupt := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	second := make(chan os.Signal, 1)
	ctx, release := stopOnSignal(parent, io.Discard, func() { close(stopped) }, fakeSignals(second))
	defer release()

	interrupt()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("first interrupt did not request a stop")
	}
	assert.NoError(t, ctx.Err(), "the run keeps its context so the current download completes")

	second <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("second interrupt did not cancel the run")
	}
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestReleaseEndsRunContextWithoutStopping(t *testing.T) {
	parent, interrupt := context.WithCancel(context.Background())
	defer interrupt()
	var stopped atomic.Bool
	ctx, release := stopOnSignal(parent, io.Discard, func() { stopped.Store(true) }, fakeSignals(make(chan os.Signal)))
	release()
	release()

	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)
	assert.False(t, stopped.Load())
}
