package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"songfactory/internal/artifact"
	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
)

// RunOptions selects what a run processes.
type RunOptions struct {
	// IDs restricts the run to these queued records. Empty means every
	// queued record, capped by max_items_per_run.
	IDs []int64
	// Transport overrides generation.transport.
	Transport string
	// DryRun writes placeholder files instead of calling the service.
	DryRun bool
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID     string
	Transport string
	Processed int
	Completed int
	Failed    int
	Stopped   bool
	Duration  time.Duration
}

// Runner processes queued records one at a time.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	bus        *Bus
	transports TransportFactory
	artifacts  *artifact.Store

	mu      sync.Mutex
	running bool
	ctl     *Control
	runID   string
	lock    *RunLock
	done    chan struct{}
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithTransportFactory overrides how transports are built.
func WithTransportFactory(factory TransportFactory) RunnerOption {
	return func(r *Runner) {
		if factory != nil {
			r.transports = factory
		}
	}
}

// WithBus publishes events on bus instead of a private one.
func WithBus(bus *Bus) RunnerOption {
	return func(r *Runner) {
		if bus != nil {
			r.bus = bus
		}
	}
}

// WithArtifactStore overrides the artifact store built from config.
func WithArtifactStore(store *artifact.Store) RunnerOption {
	return func(r *Runner) {
		if store != nil {
			r.artifacts = store
		}
	}
}

// NewRunner constructs a Runner.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "jobs"),
		bus:        NewBus(),
		transports: NewTransport,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.artifacts == nil {
		r.artifacts = artifact.NewStoreFromConfig(cfg, logger)
	}
	return r
}

// Events returns the bus the runner publishes on.
func (r *Runner) Events() *Bus {
	return r.bus
}

// Running reports whether a run is active and its id.
func (r *Runner) Running() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.runID
}

// Stop asks the active run to end at its next checkpoint.
func (r *Runner) Stop() {
	r.mu.Lock()
	ctl := r.ctl
	r.mu.Unlock()
	ctl.Stop()
}

// Confirm signals that the user confirmed the pending browser generation.
func (r *Runner) Confirm() {
	r.mu.Lock()
	ctl := r.ctl
	r.mu.Unlock()
	ctl.Confirm()
}

// Start launches a run in the background and returns its id.
func (r *Runner) Start(ctx context.Context, opts RunOptions) (string, error) {
	runID, ctl, err := r.begin()
	if err != nil {
		return "", err
	}
	go func() {
		defer r.end()
		if _, err := r.execute(ctx, runID, ctl, opts); err != nil {
			logging.ErrorWithContext(r.logger, "background run failed", "run_failed",
				logging.String(logging.FieldRunID, runID),
				logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the catalog database and the transport settings"),
			)
		}
	}()
	return runID, nil
}

// Wait blocks until the active run, if any, has finished and published
// run_finished. It returns ctx's error when ctx ends first.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes the queue and returns when the run ends.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	runID, ctl, err := r.begin()
	if err != nil {
		return RunSummary{}, err
	}
	defer r.end()
	return r.execute(ctx, runID, ctl, opts)
}

func (r *Runner) begin() (string, *Control, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return "", nil, ErrAlreadyRunning
	}
	lock, err := AcquireRunLock(r.cfg)
	if err != nil {
		return "", nil, err
	}
	r.running = true
	r.lock = lock
	r.done = make(chan struct{})
	r.runID = uuid.NewString()
	r.ctl = NewControl()
	return r.runID, r.ctl, nil
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
	r.runID = ""
	close(r.done)
	r.done = nil
}

func (r *Runner) execute(ctx context.Context, runID string, ctl *Control, opts RunOptions) (summary RunSummary, err error) {
	started := time.Now()
	summary.RunID = runID
	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithStopCheck(ctx, ctl.Stopped)

	defer func() {
		summary.Duration = time.Since(started)
		message := ""
		if err != nil {
			message = err.Error()
		} else if summary.Stopped {
			message = "stopped"
		}
		r.bus.Publish(Event{
			Type:      EventRunFinished,
			RunID:     runID,
			Message:   message,
			Processed: summary.Processed,
			Failed:    summary.Failed,
		})
	}()

	name := opts.Transport
	if strings.TrimSpace(name) == "" {
		name = r.cfg.Generation.Transport
	}
	dryRun := opts.DryRun || r.cfg.Generation.DryRun
	ctx = services.WithTransport(ctx, name)
	logger := logging.WithContext(ctx, r.logger)

	store, err := catalog.Open(r.cfg)
	if err != nil {
		return summary, fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	if n, err := store.ResetInFlight(ctx); err != nil {
		return summary, err
	} else if n > 0 {
		logging.WarnWithContext(logger, "records left in flight by an earlier run marked as errored", "inflight_reset",
			logging.Int64("count", n),
			logging.String(logging.FieldErrorHint, "check the service history, then requeue with catalog retry"),
			logging.String(logging.FieldImpact, "those records are not resubmitted automatically"),
		)
	}

	records, err := r.selectRecords(ctx, store, opts.IDs)
	if err != nil {
		return summary, err
	}
	logger.Info("run starting",
		logging.Int("queued", len(records)),
		logging.Bool("dry_run", dryRun),
	)
	if len(records) == 0 {
		return summary, nil
	}

	var transport Transport
	if !dryRun {
		transport, err = r.transports(r.cfg, name, r.logger)
		if err != nil {
			return summary, err
		}
		defer transport.Close()
		summary.Transport = transport.Name()
		if preparer, ok := transport.(Preparer); ok {
			if err := preparer.Prepare(ctx, ctl); err != nil {
				if IsStop(err) {
					summary.Stopped = true
					return summary, nil
				}
				return summary, err
			}
		}
	}

	retriever := NewRetriever(r.artifacts, metadata.NewNormalizer(r.cfg.Artifacts.StorageBase, r.cfg.Artifacts.PlaceholderRoots),
		RetrieverOptions{VerifyRemoteSize: r.cfg.API.VerifyRemoteSize, DryRun: dryRun}, r.logger)
	item := &itemRun{
		runner:    r,
		store:     store,
		transport: transport,
		retriever: retriever,
		ctl:       ctl,
		runID:     runID,
	}

	for i, rec := range records {
		if ctl.Stopped() || ctx.Err() != nil {
			summary.Stopped = true
			break
		}
		if i > 0 && r.cfg.DelayBetweenItems() > 0 {
			if err := Sleep(ctx, r.cfg.DelayBetweenItems(), ctl); err != nil {
				summary.Stopped = true
				break
			}
		}
		completed, stopped := item.process(ctx, rec)
		summary.Processed++
		if completed {
			summary.Completed++
		} else {
			summary.Failed++
		}
		if stopped {
			summary.Stopped = true
			break
		}
	}

	logger.Info("run finished",
		logging.Int("processed", summary.Processed),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Bool("stopped", summary.Stopped),
		logging.Duration("duration", time.Since(started)),
	)
	return summary, nil
}

func (r *Runner) selectRecords(ctx context.Context, store *catalog.Store, ids []int64) ([]*catalog.Record, error) {
	if len(ids) == 0 {
		return store.Queued(ctx, r.cfg.Generation.MaxItemsPerRun)
	}
	records, err := store.ListByIDs(ctx, ids...)
	if err != nil {
		return nil, err
	}
	queued := make([]*catalog.Record, 0, len(records))
	for _, rec := range records {
		if rec.Status != catalog.StatusQueued {
			logging.WarnWithContext(r.logger, "skipping record that is not queued", "record_not_queued",
				logging.Int64(logging.FieldRecordID, rec.ID),
				logging.String("status", string(rec.Status)),
				logging.String(logging.FieldErrorHint, "requeue it with catalog retry"),
				logging.String(logging.FieldImpact, "record not processed"),
			)
			continue
		}
		queued = append(queued, rec)
	}
	return queued, nil
}

func errorsIsStop(err error) bool {
	return errors.Is(err, services.ErrStopped) || errors.Is(err, context.Canceled)
}
