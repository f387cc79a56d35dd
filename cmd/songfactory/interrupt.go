package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// stopOnInterrupt turns the end of parent, which main ties to the first
// SIGINT or SIGTERM, into a cooperative stop so the song in flight can
// finish. The returned context ends on a second signal or on release.
func stopOnInterrupt(parent context.Context, out io.Writer, stop func()) (context.Context, func()) {
	return stopOnSignal(parent, out, stop, func() (<-chan os.Signal, func()) {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		return signals, func() { signal.Stop(signals) }
	})
}

func stopOnSignal(parent context.Context, out io.Writer, stop func(), notify func() (<-chan os.Signal, func())) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	released := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
		case <-released:
			return
		}
		signals, unregister := notify()
		defer unregister()
		stop()
		fmt.Fprintln(out, "Stopping after the current song; interrupt again to abort")
		select {
		case <-signals:
			cancel()
		case <-released:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(released)
			cancel()
		})
	}
}
