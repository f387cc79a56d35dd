package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"songfactory/internal/artifact"
	"songfactory/internal/catalog"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
)

// itemRun carries the per-run collaborators used for every record.
type itemRun struct {
	runner    *Runner
	store     *catalog.Store
	transport Transport
	retriever *Retriever
	ctl       *Control
	runID     string
}

// process runs one record through submit, track, retrieve and persist. It
// reports whether the record completed and whether the run must stop.
func (it *itemRun) process(ctx context.Context, rec *catalog.Record) (completed, stopped bool) {
	ctx = services.WithRecordID(ctx, rec.ID)
	logger := logging.WithContext(ctx, it.runner.logger)
	it.publish(Event{Type: EventJobStarted, RecordID: rec.ID, Title: rec.Title})

	if err := it.store.SetStatus(ctx, rec.ID, catalog.StatusProcessing, ""); err != nil {
		it.fail(ctx, logger, rec, "", err)
		return false, false
	}

	if it.transport == nil {
		out := it.retriever.Retrieve(ctx, Song{Title: rec.Title}, metadata.Resolved{Format: "mp3"}, [2]string{}, nil)
		return it.finish(ctx, logger, rec, Submission{}, out), false
	}

	sub, err := it.transport.Submit(ctx, rec)
	if err != nil {
		it.fail(ctx, logger, rec, sub.JobID, err)
		return false, IsStop(err)
	}
	ctx = services.WithJobID(ctx, sub.JobID)
	logger = logging.WithContext(ctx, it.runner.logger)
	logger.Info("generation submitted", logging.String("eta", sub.ETA))
	if err := it.store.SaveGeneration(ctx, rec.ID, catalog.StatusSubmitted, catalog.Generation{
		TaskID:        sub.JobID,
		ConversionIDs: sub.ConversionIDs,
	}, ""); err != nil {
		it.fail(ctx, logger, rec, sub.JobID, err)
		return false, false
	}
	it.publish(Event{Type: EventProgress, RecordID: rec.ID, Title: rec.Title, JobID: sub.JobID, Message: "submitted"})

	next := catalog.StatusPolling
	if sub.NeedsConfirmation {
		next = catalog.StatusAwaitingConfirmation
		it.ctl.ClearConfirmation()
	}
	if err := it.store.SetStatus(ctx, rec.ID, next, ""); err != nil {
		it.fail(ctx, logger, rec, sub.JobID, err)
		return false, false
	}
	if sub.NeedsConfirmation {
		it.publish(Event{
			Type:     EventAwaitingConfirmation,
			RecordID: rec.ID,
			Title:    rec.Title,
			JobID:    sub.JobID,
			Message:  "confirm the generation in the browser, then press Enter or send confirm",
		})
	}

	raw, err := it.transport.Track(ctx, sub, it.ctl)
	if err != nil {
		if errorsIsStop(err) {
			it.interrupt(ctx, logger, rec, sub.JobID)
			return false, true
		}
		it.fail(ctx, logger, rec, sub.JobID, err)
		return false, false
	}

	res := it.retriever.Resolve(raw, sub.JobID, sub.ConversionIDs)
	if res.IsFailed() {
		message := res.ErrorMessage
		if message == "" {
			message = "status " + res.Status
		}
		it.fail(ctx, logger, rec, sub.JobID, services.Wrap(services.ErrService, "jobs", "generation failed", message, nil))
		return false, false
	}
	it.publish(Event{Type: EventProgress, RecordID: rec.ID, Title: rec.Title, JobID: sub.JobID, Message: "downloading"})

	menu := func(ctx context.Context, rendition int) (artifact.BrowserDownload, error) {
		return it.transport.MenuDownload(ctx, sub, rec.Title, rendition)
	}
	out := it.retriever.Retrieve(ctx, Song{Title: rec.Title}, res, sub.ConversionIDs, menu)
	return it.finish(ctx, logger, rec, sub, out), it.ctl.Stopped()
}

func (it *itemRun) finish(ctx context.Context, logger *slog.Logger, rec *catalog.Record, sub Submission, out Outcome) bool {
	ctx = context.WithoutCancel(ctx)
	status := catalog.StatusCompleted
	if !out.Complete() {
		status = catalog.StatusError
	}
	if err := it.store.SaveGeneration(ctx, rec.ID, status, out.Generation(), out.Note()); err != nil {
		it.fail(ctx, logger, rec, sub.JobID, err)
		return false
	}
	if !out.Complete() {
		it.reportFailure(logger, rec, sub.JobID, out.Err, out.Note())
		return false
	}
	logger.Info("song completed",
		logging.String("path", out.Files[0].Path),
		logging.Int64("size_bytes", out.Files[0].Size),
		logging.Int("renditions", len(out.Paths())),
		logging.Float64("duration_seconds", out.Resolved.DurationSeconds),
	)
	it.publish(Event{
		Type:     EventJobCompleted,
		RecordID: rec.ID,
		Title:    rec.Title,
		JobID:    out.Resolved.JobID,
		Paths:    out.Paths(),
		Message:  out.Note(),
	})
	return true
}

// fail moves the record to error with a typed note and emits job_failed.
func (it *itemRun) fail(ctx context.Context, logger *slog.Logger, rec *catalog.Record, jobID string, err error) {
	ctx = context.WithoutCancel(ctx)
	note := services.Note(err)
	if jobID != "" {
		if saveErr := it.store.SaveGeneration(ctx, rec.ID, catalog.StatusError, catalog.Generation{TaskID: jobID}, note); saveErr != nil {
			logger.Error("failed to record error status", logging.Error(saveErr),
				logging.String(logging.FieldEventType, "status_update_failed"),
				logging.String(logging.FieldErrorHint, "check catalog database access"),
			)
		}
	} else if setErr := it.store.SetStatus(ctx, rec.ID, catalog.StatusError, note); setErr != nil {
		logger.Error("failed to record error status", logging.Error(setErr),
			logging.String(logging.FieldEventType, "status_update_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
	}
	it.reportFailure(logger, rec, jobID, err, note)
}

func (it *itemRun) reportFailure(logger *slog.Logger, rec *catalog.Record, jobID string, err error, note string) {
	logging.ErrorWithContext(logger, "song failed", "job_failed",
		logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(services.KindOf(err))),
	)
	it.publish(Event{Type: EventJobFailed, RecordID: rec.ID, Title: rec.Title, JobID: jobID, Message: note})
}

// interrupt records a stop that arrived while the service was working on
// the job. The job may still finish remotely, so the record is not requeued.
func (it *itemRun) interrupt(ctx context.Context, logger *slog.Logger, rec *catalog.Record, jobID string) {
	ctx = context.WithoutCancel(ctx)
	if err := it.store.SetStatus(ctx, rec.ID, catalog.StatusError, catalog.InterruptedNote); err != nil {
		logger.Error("failed to record interruption", logging.Error(err),
			logging.String(logging.FieldEventType, "status_update_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
	}
	logging.WarnWithContext(logger, "run stopped while job was in flight", "job_interrupted",
		logging.String(logging.FieldErrorHint, "import it later with history import"),
		logging.String(logging.FieldImpact, "record marked error"),
	)
	it.publish(Event{Type: EventJobFailed, RecordID: rec.ID, Title: rec.Title, JobID: jobID, Message: catalog.InterruptedNote})
}

func (it *itemRun) publish(ev Event) {
	ev.RunID = it.runID
	it.runner.bus.Publish(ev)
}

func hintFor(kind services.Kind) string {
	switch kind {
	case services.KindCredentialInvalid:
		return "check api.api_key or MUSICGPT_API_KEY"
	case services.KindRateLimited:
		return "wait before retrying; the API key is rate limited"
	case services.KindNetwork:
		return "check network connectivity, then catalog retry"
	case services.KindTimeout:
		return "the service did not finish in time; requeue with catalog retry"
	case services.KindSelectorNotFound:
		return "run selectors check; the site layout may have changed"
	case services.KindVerificationFailed:
		return "the download was not valid audio; retry later"
	case services.KindNoArtifactResolved:
		return "no download URL was found; try history import later"
	default:
		return fmt.Sprintf("see record notes (%s)", kind)
	}
}
