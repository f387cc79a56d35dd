package history

import (
	"context"
	"log/slog"

	"songfactory/internal/artifact"
	"songfactory/internal/catalog"
	"songfactory/internal/jobs"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
)

type importer struct {
	runner    *Runner
	store     *catalog.Store
	retriever *jobs.Retriever
	runID     string
}

func (imp *importer) importOne(ctx context.Context, item Item, summary *ImportSummary) {
	title := item.DisplayTitle()
	if item.JobID != "" {
		ctx = services.WithJobID(ctx, item.JobID)
	}
	logger := logging.WithContext(ctx, imp.runner.logger)

	existing, err := imp.match(ctx, item, title)
	if err != nil {
		summary.Failed++
		imp.report(logger, 0, item, title, err)
		return
	}
	var recordID int64
	if existing != nil {
		if existing.Status == catalog.StatusCompleted && existing.HasPrimaryFile() {
			summary.Skipped++
			logger.Debug("history item already in catalog",
				logging.Int64(logging.FieldRecordID, existing.ID),
				logging.String("title", existing.Title),
			)
			return
		}
		recordID = existing.ID
		title = existing.Title
		ctx = services.WithRecordID(ctx, recordID)
		logger = logging.WithContext(ctx, imp.runner.logger)
	}

	imp.publish(jobs.Event{Type: jobs.EventJobStarted, RecordID: recordID, Title: title, JobID: item.JobID, Message: "importing"})

	res := imp.retriever.Resolve(imp.document(ctx, logger, item), item.JobID, item.ConversionIDs)
	res = preferDiscoveredURL(imp.retriever.Normalizer(), res, item.AudioURL)
	song := jobs.Song{Title: title, DatePrefix: artifact.DatePrefix(item.CreatedAt)}
	if song.DatePrefix == "" {
		song.DatePrefix = artifact.DatePrefix(res.CreatedAt)
	}
	out := imp.retriever.Retrieve(ctx, song, res, item.ConversionIDs, nil)

	status := catalog.StatusImported
	if out.Complete() {
		status = catalog.StatusCompleted
	}
	gen := out.Generation()
	writeCtx := context.WithoutCancel(ctx)

	if existing == nil {
		rec, err := imp.store.InsertImported(writeCtx, catalog.ImportedRecord{
			Title:  title,
			Prompt: item.Prompt,
			Lyrics: item.Lyrics,
		}, status, gen, out.Note())
		if err != nil {
			summary.Failed++
			imp.report(logger, 0, item, title, err)
			return
		}
		recordID = rec.ID
		summary.Inserted++
	} else {
		if err := imp.store.SaveGeneration(writeCtx, recordID, status, gen, out.Note()); err != nil {
			summary.Failed++
			imp.report(logger, recordID, item, title, err)
			return
		}
		if _, err := imp.store.FillDetails(writeCtx, recordID, item.Prompt, item.Lyrics); err != nil {
			logging.WarnWithContext(logger, "fill details failed", "history_fill_details_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "prompt or lyrics stay empty until the next sync"),
			)
		}
		summary.Updated++
	}

	if status == catalog.StatusCompleted {
		summary.Completed++
	} else {
		summary.Imported++
	}
	logger.Info("history item imported",
		logging.Int64(logging.FieldRecordID, recordID),
		logging.String("title", title),
		logging.String("status", string(status)),
		logging.Int("files", len(out.Paths())),
	)
	imp.publish(jobs.Event{
		Type:     jobs.EventJobCompleted,
		RecordID: recordID,
		Title:    title,
		JobID:    item.JobID,
		Message:  string(status),
		Paths:    out.Paths(),
	})
}

// match finds the catalog record for item by job id, then by title.
func (imp *importer) match(ctx context.Context, item Item, title string) (*catalog.Record, error) {
	if item.JobID != "" {
		rec, err := imp.store.FindByTaskID(ctx, item.JobID)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	return imp.store.FindByTitle(ctx, title)
}

// document prefers a fresh service document and falls back to what
// discovery saw.
func (imp *importer) document(ctx context.Context, logger *slog.Logger, item Item) map[string]any {
	fresher := imp.runner.fresher
	if fresher == nil || item.JobID == "" {
		return item.Document()
	}
	doc, err := fresher.FreshMetadata(ctx, jobs.Submission{JobID: item.JobID, ConversionIDs: item.ConversionIDs})
	if err != nil {
		logging.WarnWithContext(logger, "fresh metadata unavailable", "history_fresh_metadata_failed",
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.Error(err),
			logging.String(logging.FieldImpact, "using the discovered fields"),
		)
		return item.Document()
	}
	return doc
}

func (imp *importer) report(logger *slog.Logger, recordID int64, item Item, title string, err error) {
	logging.ErrorWithContext(logger, "history import failed", "history_import_failed",
		logging.String("title", title),
		logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
		logging.Error(err),
	)
	imp.publish(jobs.Event{
		Type:     jobs.EventJobFailed,
		RecordID: recordID,
		Title:    title,
		JobID:    item.JobID,
		Message:  services.Note(err),
	})
}

func (imp *importer) publish(ev jobs.Event) {
	ev.RunID = imp.runID
	imp.runner.bus.Publish(ev)
}

// preferDiscoveredURL keeps an explicit URL seen during discovery over one
// the normalizer had to reconstruct.
func preferDiscoveredURL(n *metadata.Normalizer, res metadata.Resolved, discovered string) metadata.Resolved {
	if discovered == "" || n.IsPlaceholder(discovered) {
		return res
	}
	switch res.URLSources[0] {
	case metadata.SourceNone, metadata.SourceConversionID, metadata.SourceJobID:
		res.URLs[0] = discovered
		res.URLSources[0] = metadata.SourceGeneric
	}
	return res
}
