package jobs

import (
	"log/slog"
	"sync"
	"time"

	"songfactory/internal/logging"
)

// EventType names a runner event.
type EventType string

const (
	EventJobStarted           EventType = "job_started"
	EventJobCompleted         EventType = "job_completed"
	EventJobFailed            EventType = "job_failed"
	EventProgress             EventType = "progress"
	EventAwaitingConfirmation EventType = "awaiting_confirmation"
	EventRunFinished          EventType = "run_finished"
)

// Event is one notification emitted by a run.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	RecordID  int64     `json:"record_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
	Processed int       `json:"processed,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Time      time.Time `json:"time"`
}

const defaultSubscriberBuffer = 64

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	dropped int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and must be called once the subscriber stops reading.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// behind.
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Consume runs fn for every event until the subscription channel closes. It
// is meant to run in its own goroutine.
func Consume(events <-chan Event, fn func(Event)) {
	for ev := range events {
		fn(ev)
	}
}

// LogSink writes each event to logger at info level, failures at warn.
func LogSink(logger *slog.Logger) func(Event) {
	logger = logging.NewComponentLogger(logger, "events")
	return func(ev Event) {
		attrs := []logging.Attr{
			logging.String("event", string(ev.Type)),
			logging.String(logging.FieldRunID, ev.RunID),
		}
		if ev.RecordID > 0 {
			attrs = append(attrs, logging.Int64(logging.FieldRecordID, ev.RecordID))
		}
		if ev.Title != "" {
			attrs = append(attrs, logging.String("title", ev.Title))
		}
		if ev.JobID != "" {
			attrs = append(attrs, logging.String(logging.FieldJobID, ev.JobID))
		}
		if ev.Message != "" {
			attrs = append(attrs, logging.String("message", ev.Message))
		}
		if ev.Type == EventRunFinished {
			attrs = append(attrs, logging.Int("processed", ev.Processed), logging.Int("failed", ev.Failed))
		}
		if ev.Type == EventJobFailed {
			logging.WarnWithContext(logger, "job failed", "job_failed",
				append(attrs,
					logging.String(logging.FieldErrorHint, "see the record notes; retry with catalog retry"),
					logging.String(logging.FieldImpact, "record left in error status"),
				)...,
			)
			return
		}
		logger.Info(string(ev.Type), logging.Args(attrs...)...)
	}
}
