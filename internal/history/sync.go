package history

import (
	"context"
	"fmt"

	"songfactory/internal/catalog"
	"songfactory/internal/logging"
)

// SyncDetails fills empty prompt and lyrics on catalog records from the
// discovered history. It returns the number of records changed.
func (r *Runner) SyncDetails(ctx context.Context) (int, error) {
	ctl, err := r.begin(true)
	if err != nil {
		return 0, err
	}
	defer r.end()

	store, err := catalog.Open(r.cfg)
	if err != nil {
		return 0, fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	missing, err := store.MissingDetails(ctx)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		r.logger.Info("no records missing details")
		return 0, nil
	}

	items, err := r.discover(ctx, ctl)
	if err != nil {
		return 0, err
	}
	byJob := make(map[string]Item, len(items))
	for _, item := range items {
		if item.JobID != "" {
			byJob[item.JobID] = item
		}
	}

	updated := 0
	for _, rec := range missing {
		item, ok := byJob[rec.TaskID]
		if !ok || (item.Prompt == "" && item.Lyrics == "") {
			continue
		}
		changed, err := store.FillDetails(ctx, rec.ID, item.Prompt, item.Lyrics)
		if err != nil {
			return updated, err
		}
		if changed {
			updated++
			r.logger.Info("filled record details",
				logging.Int64(logging.FieldRecordID, rec.ID),
				logging.String(logging.FieldJobID, rec.TaskID),
			)
		}
	}
	r.logger.Info("detail sync finished",
		logging.Int("missing", len(missing)),
		logging.Int("updated", updated),
	)
	return updated, nil
}
