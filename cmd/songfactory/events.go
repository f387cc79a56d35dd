package main

import (
	"sync"

	"songfactory/internal/jobs"
)

// consumeEvents runs each fn on its own subscription to bus. The returned
// func closes the subscriptions and waits for the buffered events to be
// handled; it is safe to call more than once.
func consumeEvents(bus *jobs.Bus, fns ...func(jobs.Event)) func() {
	var wg sync.WaitGroup
	cancels := make([]func(), 0, len(fns))
	for _, fn := range fns {
		events, cancel := bus.Subscribe(0)
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs.Consume(events, fn)
		}()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, cancel := range cancels {
				cancel()
			}
			wg.Wait()
		})
	}
}
