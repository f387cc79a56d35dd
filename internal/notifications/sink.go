package notifications

import (
	"context"
	"log/slog"
	"time"

	"songfactory/internal/jobs"
	"songfactory/internal/logging"
)

const sinkTimeout = 15 * time.Second

// Sink forwards run events to svc. label names the kind of run in the
// finished message. Delivery failures are logged and dropped.
func Sink(svc Service, label string, logger *slog.Logger) func(jobs.Event) {
	logger = logging.NewComponentLogger(logger, "notifications")
	return func(ev jobs.Event) {
		event, fields, ok := translate(ev, label)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := svc.Publish(ctx, event, fields); err != nil {
			logging.WarnWithContext(logger, "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the event is not delivered"),
			)
		}
	}
}

func translate(ev jobs.Event, label string) (Event, Payload, bool) {
	switch ev.Type {
	case jobs.EventJobCompleted:
		if len(ev.Paths) == 0 {
			return "", nil, false
		}
		return EventSongCompleted, Payload{"title": ev.Title, "paths": ev.Paths}, true
	case jobs.EventJobFailed:
		return EventSongFailed, Payload{"title": ev.Title, "error": ev.Message}, true
	case jobs.EventAwaitingConfirmation:
		return EventAwaitingConfirmation, Payload{"title": ev.Title}, true
	case jobs.EventRunFinished:
		return EventRunFinished, Payload{"processed": ev.Processed, "failed": ev.Failed, "label": label}, true
	default:
		return "", nil, false
	}
}
