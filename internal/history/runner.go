package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"songfactory/internal/artifact"
	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/jobs"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
	"songfactory/internal/services/musicgpt"
)

// Fresher re-queries authoritative metadata for a job.
type Fresher interface {
	FreshMetadata(ctx context.Context, sub jobs.Submission) (map[string]any, error)
}

// ImportSummary counts the outcome of an import.
type ImportSummary struct {
	RunID     string
	Items     int
	Skipped   int
	Inserted  int
	Updated   int
	Completed int
	Imported  int
	Failed    int
	Stopped   bool
	Duration  time.Duration
}

// Runner discovers and imports history items. Only one operation runs at a
// time.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	sources   []Source
	fresher   Fresher
	bus       *jobs.Bus
	artifacts *artifact.Store

	mu      sync.Mutex
	running bool
	ctl     *jobs.Control
	lock    *jobs.RunLock
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSources replaces the default feed source.
func WithSources(sources ...Source) Option {
	return func(r *Runner) {
		if len(sources) > 0 {
			r.sources = sources
		}
	}
}

// WithFresher overrides how fresh metadata is fetched.
func WithFresher(fresher Fresher) Option {
	return func(r *Runner) {
		r.fresher = fresher
	}
}

// WithBus publishes progress on bus.
func WithBus(bus *jobs.Bus) Option {
	return func(r *Runner) {
		if bus != nil {
			r.bus = bus
		}
	}
}

// WithArtifactStore overrides where imported files are written.
func WithArtifactStore(store *artifact.Store) Option {
	return func(r *Runner) {
		if store != nil {
			r.artifacts = store
		}
	}
}

// NewRunner builds a Runner. Fresh metadata comes from the MusicGPT API when
// a key is configured.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "history"),
		bus:       jobs.NewBus(),
		artifacts: artifact.NewStoreFromConfig(cfg, logger),
	}
	r.sources = []Source{NewFeedSource(cfg, logger)}
	if cfg.API.APIKey != "" {
		client := musicgpt.NewClient(musicgpt.ConfigFrom(cfg), musicgpt.WithLogger(logger))
		r.fresher = jobs.NewAPITransport(client, jobs.APIPolicyFromConfig(cfg), logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the bus progress is published on.
func (r *Runner) Events() *jobs.Bus {
	return r.bus
}

// Stop asks the active operation to end at its next checkpoint.
func (r *Runner) Stop() {
	r.mu.Lock()
	ctl := r.ctl
	r.mu.Unlock()
	ctl.Stop()
}

// begin claims the runner. Operations that write the catalog also take the
// cross-process run lock shared with queue runs.
func (r *Runner) begin(writes bool) (*jobs.Control, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, jobs.ErrAlreadyRunning
	}
	if writes {
		lock, err := jobs.AcquireRunLock(r.cfg)
		if err != nil {
			return nil, err
		}
		r.lock = lock
	}
	r.running = true
	r.ctl = jobs.NewControl()
	return r.ctl, nil
}

func (r *Runner) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.lock.Release(); err != nil {
		logging.WarnWithContext(r.logger, "failed to release run lock", "run_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "later runs may report one already active"),
		)
	}
	r.lock = nil
	r.running = false
}

// Discover collects items from every source, deduplicated by job id, in
// arrival order. A stop returns what was found so far.
func (r *Runner) Discover(ctx context.Context) ([]Item, error) {
	ctl, err := r.begin(false)
	if err != nil {
		return nil, err
	}
	defer r.end()
	return r.discover(ctx, ctl)
}

// Import merges items into the catalog.
func (r *Runner) Import(ctx context.Context, items []Item) (ImportSummary, error) {
	ctl, err := r.begin(true)
	if err != nil {
		return ImportSummary{}, err
	}
	defer r.end()
	return r.importItems(ctx, ctl, items)
}

// Run discovers and imports in one operation.
func (r *Runner) Run(ctx context.Context) (ImportSummary, error) {
	ctl, err := r.begin(true)
	if err != nil {
		return ImportSummary{}, err
	}
	defer r.end()
	items, err := r.discover(ctx, ctl)
	if err != nil {
		return ImportSummary{}, err
	}
	return r.importItems(ctx, ctl, items)
}

func (r *Runner) discover(ctx context.Context, ctl *jobs.Control) ([]Item, error) {
	ctx = services.WithStopCheck(ctx, ctl.Stopped)
	found := newCollector()
	for _, source := range r.sources {
		before := len(found.items)
		err := source.Discover(ctx, ctl.Stopped, found.add)
		if errors.Is(err, services.ErrStopped) {
			break
		}
		if err != nil {
			return found.items, fmt.Errorf("%s discovery: %w", source.Name(), err)
		}
		r.logger.Info("source discovered items",
			logging.String("source", source.Name()),
			logging.Int("new_items", len(found.items)-before),
		)
	}
	return found.items, nil
}

func (r *Runner) importItems(ctx context.Context, ctl *jobs.Control, items []Item) (summary ImportSummary, err error) {
	started := time.Now()
	summary.RunID = uuid.NewString()
	summary.Items = len(items)
	ctx = services.WithRunID(ctx, summary.RunID)
	ctx = services.WithStopCheck(ctx, ctl.Stopped)
	defer func() {
		summary.Duration = time.Since(started)
		r.bus.Publish(jobs.Event{
			Type:      jobs.EventRunFinished,
			RunID:     summary.RunID,
			Message:   "history import",
			Processed: summary.Items - summary.Skipped,
			Failed:    summary.Failed,
		})
	}()

	store, err := catalog.Open(r.cfg)
	if err != nil {
		return summary, fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	retriever := jobs.NewRetriever(r.artifacts,
		metadata.NewNormalizer(r.cfg.Artifacts.StorageBase, r.cfg.Artifacts.PlaceholderRoots),
		jobs.RetrieverOptions{VerifyRemoteSize: r.cfg.API.VerifyRemoteSize}, r.logger)
	imp := &importer{runner: r, store: store, retriever: retriever, runID: summary.RunID}

	for _, item := range items {
		if ctl.Stopped() || ctx.Err() != nil {
			summary.Stopped = true
			break
		}
		imp.importOne(ctx, item, &summary)
	}
	r.logger.Info("history import finished",
		logging.String(logging.FieldRunID, summary.RunID),
		logging.Int("items", summary.Items),
		logging.Int("skipped", summary.Skipped),
		logging.Int("inserted", summary.Inserted),
		logging.Int("updated", summary.Updated),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
	)
	return summary, nil
}
