package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"songfactory/internal/fileutil"
	"songfactory/internal/logging"
	"songfactory/internal/selectors"
	"songfactory/internal/services"
)

const (
	loginPollInterval   = 2 * time.Second
	capturePollInterval = 500 * time.Millisecond
	settleDelay         = 1500 * time.Millisecond
)

// Driver automates the music site in a persistent Chrome profile.
type Driver struct {
	opts     Options
	registry *selectors.Registry
	logger   *slog.Logger
	shots    *Screenshots

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	capture   captureState
	downloads downloadState
}

// New builds a driver. Chrome starts on first use.
func New(opts Options, registry *selectors.Registry, logger *slog.Logger) *Driver {
	opts = opts.withDefaults()
	return &Driver{
		opts:     opts,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "automation"),
		shots:    NewScreenshots(opts.ScreenshotDir, opts.MaxScreenshots),
	}
}

// Options returns the effective options.
func (d *Driver) Options() Options {
	return d.opts
}

// Close shuts the browser down.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.browserCtx = nil
	d.browserCancel = nil
	d.allocCancel = nil
	return nil
}

func (d *Driver) ensureBrowser() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx != nil {
		return d.browserCtx, nil
	}
	for _, dir := range []string{d.opts.ProfileDir, d.opts.DownloadDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "automation", "launch", "create browser dir", err)
		}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-gpu", d.opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1440, 960),
	)
	if d.opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(d.opts.ProfileDir))
	}
	if d.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(d.opts.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		d.logger.Debug(fmt.Sprintf(format, args...))
	}))
	chromedp.ListenTarget(browserCtx, func(ev any) {
		d.handleEvent(browserCtx, ev)
	})

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, services.Wrap(services.ErrConfiguration, "automation", "launch", "start chrome", err)
	}
	setupCtx, cancel := context.WithTimeout(browserCtx, d.opts.PageLoadTimeout)
	defer cancel()
	if err := chromedp.Run(setupCtx,
		network.Enable(),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(d.opts.DownloadDir).
			WithEventsEnabled(true),
	); err != nil {
		browserCancel()
		allocCancel()
		return nil, services.Wrap(services.ErrConfiguration, "automation", "launch", "configure browser", err)
	}

	d.browserCtx = browserCtx
	d.browserCancel = browserCancel
	d.allocCancel = allocCancel
	d.logger.Info("browser started",
		logging.Bool("headless", d.opts.Headless),
		logging.String("profile_dir", d.opts.ProfileDir),
	)
	return browserCtx, nil
}

func (d *Driver) handleEvent(browserCtx context.Context, ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		d.capture.observeRequest(e)
	case *network.EventResponseReceived:
		d.capture.observeResponse(e)
	case *network.EventLoadingFinished:
		if d.capture.takePending(e.RequestID) {
			go d.readBody(browserCtx, e.RequestID)
		}
	case *browser.EventDownloadWillBegin:
		d.downloads.begin(e)
	case *browser.EventDownloadProgress:
		d.downloads.progress(e)
	}
}

// readBody runs outside the event goroutine; CDP calls from inside a
// listener would deadlock.
func (d *Driver) readBody(browserCtx context.Context, id network.RequestID) {
	c := chromedp.FromContext(browserCtx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(browserCtx, c.Target))
	if err != nil {
		d.logger.Debug("response body unavailable", logging.Error(err))
		return
	}
	if d.capture.observeBody(body) {
		snap := d.capture.snapshot()
		d.logger.Info("job id captured",
			logging.String(logging.FieldJobID, snap.JobID),
			logging.String("conversion_id_1", snap.ConversionIDs[0]),
			logging.String("conversion_id_2", snap.ConversionIDs[1]),
			logging.Bool("auth_token", snap.AuthToken != ""),
		)
	}
}

// run executes actions bounded by timeout and by the caller's ctx.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	browserCtx, err := d.ensureBrowser()
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(opCtx, actions...)
}

func (d *Driver) navigate(ctx context.Context, url string) (string, error) {
	var location string
	err := d.run(ctx, d.opts.PageLoadTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrNetwork, "automation", "navigate", url, err)
	}
	return location, nil
}

// EnsureLoggedIn opens the music page and, when the site redirects to
// sign-in, waits for the user to log in by hand. stop is polled between
// checks.
func (d *Driver) EnsureLoggedIn(ctx context.Context, stop func() bool) error {
	location, err := d.navigate(ctx, d.opts.MusicURL())
	if err != nil {
		return err
	}
	if !IsAuthURL(location) {
		d.logger.Debug("session is logged in", logging.String("url", location))
		return nil
	}

	logging.WarnWithContext(d.logger, "login required", "login_required",
		logging.String(logging.FieldErrorHint, "sign in through the opened browser window"),
		logging.String(logging.FieldImpact, "generation waits until login completes"),
		logging.Duration("timeout", d.opts.LoginTimeout),
	)
	if _, err := d.navigate(ctx, d.opts.LoginURL()); err != nil {
		return err
	}
	deadline := time.Now().Add(d.opts.LoginTimeout)
	for time.Now().Before(deadline) {
		if err := sleepChunked(ctx, loginPollInterval, stop); err != nil {
			return err
		}
		var current string
		if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Location(&current)); err != nil {
			continue
		}
		if !IsAuthURL(current) && strings.HasPrefix(current, d.opts.SiteURL) {
			d.logger.Info("login detected", logging.String("url", current))
			return nil
		}
	}
	d.Screenshot(ctx, "login_timeout")
	return services.Wrap(services.ErrTimeout, "automation", "login",
		fmt.Sprintf("manual login not completed within %s", d.opts.LoginTimeout), nil)
}

// Submit fills the generation form, clicks generate and waits up to the
// capture window for the job id to appear in the site's API traffic.
func (d *Driver) Submit(ctx context.Context, prompt, lyrics string) (Capture, error) {
	if _, err := d.navigate(ctx, d.opts.MusicURL()); err != nil {
		return Capture{}, err
	}
	if err := d.fill(ctx, selectors.GroupPromptTextarea, prompt); err != nil {
		return Capture{}, err
	}
	if strings.TrimSpace(lyrics) != "" {
		if err := d.click(ctx, selectors.GroupLyricsToggle); err != nil {
			return Capture{}, err
		}
		if err := d.fill(ctx, selectors.GroupLyricsTextarea, lyrics); err != nil {
			return Capture{}, err
		}
	}

	d.capture.arm()
	defer d.capture.disarm()
	if err := d.click(ctx, selectors.GroupGenerateButton); err != nil {
		return Capture{}, err
	}

	deadline := time.Now().Add(d.opts.CaptureWindow)
	for {
		snap := d.capture.snapshot()
		if snap.JobID != "" {
			return snap, nil
		}
		if time.Now().After(deadline) {
			break
		}
		if err := sleepContext(ctx, capturePollInterval); err != nil {
			return Capture{}, err
		}
	}
	shot := d.Screenshot(ctx, "submit_no_job_id")
	return d.capture.snapshot(), services.Wrap(services.ErrTimeout, "automation", "submit",
		fmt.Sprintf("no job id captured within %s (screenshot %s)", d.opts.CaptureWindow, shot), nil)
}

// Screenshot saves a full-page screenshot and returns its path, or "" when
// none could be taken.
func (d *Driver) Screenshot(ctx context.Context, name string) string {
	d.mu.Lock()
	started := d.browserCtx != nil
	d.mu.Unlock()
	if !started {
		return ""
	}
	path, err := d.shots.Next(name)
	if err != nil {
		logging.WarnWithContext(d.logger, "screenshot path unavailable", "screenshot_failed", logging.Error(err))
		return ""
	}
	var buf []byte
	if err := d.run(context.WithoutCancel(ctx), 10*time.Second, chromedp.FullScreenshot(&buf, 90)); err != nil {
		logging.WarnWithContext(d.logger, "screenshot failed", "screenshot_failed", logging.Error(err))
		return ""
	}
	if err := fileutil.WriteFileAtomic(path, buf, 0o644); err != nil {
		logging.WarnWithContext(d.logger, "screenshot not saved", "screenshot_failed", logging.Error(err))
		return ""
	}
	d.logger.Info("debug screenshot saved", logging.String("path", path))
	return path
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sleepChunked sleeps in one-second steps, returning services.ErrStopped as
// soon as stop reports true.
func sleepChunked(ctx context.Context, total time.Duration, stop func() bool) error {
	for remaining := total; remaining > 0; remaining -= time.Second {
		if stop != nil && stop() {
			return services.ErrStopped
		}
		if err := sleepContext(ctx, min(time.Second, remaining)); err != nil {
			return err
		}
	}
	if stop != nil && stop() {
		return services.ErrStopped
	}
	return nil
}
