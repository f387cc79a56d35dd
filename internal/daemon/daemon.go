package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/jobs"
	"songfactory/internal/logging"
	"songfactory/internal/notifications"
)

// Daemon owns the queue runner in serve mode and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	runner   *jobs.Runner
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	cron    *cron.Cron
	entryID cron.EntryID
	hub     *hub
	server  *server

	stopGrace time.Duration

	running   atomic.Bool
	stopping  atomic.Bool
	cancel    context.CancelFunc
	ctx       context.Context
	consumers sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool                   `json:"running"`
	RunActive  bool                   `json:"run_active"`
	RunID      string                 `json:"run_id,omitempty"`
	Schedule   string                 `json:"schedule,omitempty"`
	NextRun    *time.Time             `json:"next_run,omitempty"`
	Clients    int                    `json:"clients"`
	Catalog    map[catalog.Status]int `json:"catalog,omitempty"`
	CatalogErr string                 `json:"catalog_error,omitempty"`
	LockPath   string                 `json:"lock_path"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier replaces the configured notification service.
func WithNotifier(svc notifications.Service) Option {
	return func(d *Daemon) {
		if svc != nil {
			d.notifier = svc
		}
	}
}

// WithStopGrace bounds how long Stop waits for the active run to finish.
func WithStopGrace(grace time.Duration) Option {
	return func(d *Daemon) {
		if grace > 0 {
			d.stopGrace = grace
		}
	}
}

// New constructs a daemon around runner.
func New(cfg *config.Config, runner *jobs.Runner, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || runner == nil {
		return nil, errors.New("daemon requires config and runner")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		runner:   runner,
		notifier: notifications.NewService(cfg),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		cron:     cron.New(),
		// Long enough for one download and its retries.
		stopGrace: 2*cfg.DownloadTimeout() + time.Minute,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.hub = newHub(d, logger)
	d.server = newServer(cfg.Serve.Listen, cfg.Serve.Token, d, logger)
	return d, nil
}

// Start acquires the instance lock, starts the listener and the schedule.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another songfactory serve instance is already running")
	}

	// Runs outlive ctx; Stop ends them cooperatively before cancelling.
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if err := d.server.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		return err
	}

	if schedule := d.cfg.Serve.Schedule; schedule != "" {
		id, err := d.cron.AddFunc(schedule, d.scheduledRun)
		if err != nil {
			d.server.stop()
			_ = d.lock.Unlock()
			d.cancel()
			return fmt.Errorf("schedule %q: %w", schedule, err)
		}
		d.entryID = id
	}
	d.cron.Start()

	d.consume(d.hub.broadcast)
	d.consume(notifications.Sink(d.notifier, "Queue run", d.logger))
	d.consume(jobs.LogSink(d.logger))

	d.running.Store(true)
	d.logger.Info("songfactory serve started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.Addr()),
		logging.String("schedule", d.cfg.Serve.Schedule),
	)
	return nil
}

// consume runs fn on its own subscription so a slow sink only drops its own
// events.
func (d *Daemon) consume(fn func(jobs.Event)) {
	events, cancel := d.runner.Events().Subscribe(0)
	d.consumers.Add(1)
	go func() {
		defer d.consumers.Done()
		jobs.Consume(events, fn)
	}()
	go func() {
		<-d.ctx.Done()
		cancel()
	}()
}

// Stop shuts down and waits at most the stop grace for the active run.
func (d *Daemon) Stop() {
	d.Shutdown(context.Background())
}

// Shutdown ends the schedule, asks the active run to stop and waits for it
// to publish run_finished before tearing down the listener and releasing
// the lock. The wait ends early when ctx ends or the stop grace passes; the
// run is then cancelled.
func (d *Daemon) Shutdown(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	d.stopping.Store(true)
	defer d.stopping.Store(false)
	<-d.cron.Stop().Done()
	d.runner.Stop()
	waitCtx, cancelWait := context.WithTimeout(ctx, d.stopGrace)
	if err := d.runner.Wait(waitCtx); err != nil {
		logging.WarnWithContext(d.logger, "active run did not finish before shutdown", "run_shutdown_timeout",
			logging.Error(err),
			logging.Duration("grace", d.stopGrace),
			logging.String(logging.FieldErrorHint, "the next run marks the abandoned record as errored"),
			logging.String(logging.FieldImpact, "in-flight song cancelled"),
		)
	}
	cancelWait()
	if d.cancel != nil {
		d.cancel()
	}
	// A cancelled run still publishes run_finished before it returns.
	endCtx, cancelEnd := context.WithTimeout(context.Background(), 10*time.Second)
	_ = d.runner.Wait(endCtx)
	cancelEnd()

	d.server.stop()
	d.hub.close()
	d.consumers.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release serve lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next serve start may report a running instance"),
		)
	}
	d.cancel = nil
	d.running.Store(false)
	d.logger.Info("songfactory serve stopped")
}

// Addr returns the listener address once started.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// StartRun begins a queue run in the background.
func (d *Daemon) StartRun(opts jobs.RunOptions) (string, error) {
	ctx := d.ctx
	if ctx == nil {
		return "", errors.New("daemon not started")
	}
	if d.stopping.Load() {
		return "", errors.New("daemon is shutting down")
	}
	return d.runner.Start(ctx, opts)
}

// Confirm signals that a browser generation was confirmed.
func (d *Daemon) Confirm() {
	d.runner.Confirm()
}

// StopRun asks the active run to stop.
func (d *Daemon) StopRun() {
	d.runner.Stop()
}

func (d *Daemon) scheduledRun() {
	runID, err := d.StartRun(jobs.RunOptions{})
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		d.logger.Info("scheduled run skipped; a run is already active")
		return
	}
	if err != nil {
		logging.ErrorWithContext(d.logger, "scheduled run failed to start", "scheduled_run_failed",
			logging.Error(err),
		)
		return
	}
	d.logger.Info("scheduled run started", logging.String(logging.FieldRunID, runID))
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	active, runID := d.runner.Running()
	status := Status{
		Running:   d.running.Load(),
		RunActive: active,
		RunID:     runID,
		Schedule:  d.cfg.Serve.Schedule,
		Clients:   d.hub.count(),
		LockPath:  d.lockPath,
	}
	if d.entryID != 0 {
		if next := d.cron.Entry(d.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	store, err := catalog.Open(d.cfg)
	if err != nil {
		status.CatalogErr = err.Error()
		return status
	}
	defer store.Close()
	stats, err := store.Stats(ctx)
	if err != nil {
		status.CatalogErr = err.Error()
		return status
	}
	status.Catalog = stats
	return status
}
