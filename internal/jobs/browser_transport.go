package jobs

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"songfactory/internal/artifact"
	"songfactory/internal/automation"
	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
)

const freshAttempts = 3

// Browser is the automation surface the browser transport drives.
type Browser interface {
	EnsureLoggedIn(ctx context.Context, stop func() bool) error
	Submit(ctx context.Context, prompt, lyrics string) (automation.Capture, error)
	FetchFresh(ctx context.Context, capture automation.Capture) (map[string]any, map[string]any, error)
	MenuDownload(ctx context.Context, jobID, title string, rendition int) (artifact.BrowserDownload, error)
	Close() error
}

// BrowserPolicy bounds the confirmation wait.
type BrowserPolicy struct {
	ConfirmationTimeout time.Duration
	PostConfirmDelay    time.Duration
	RetryDelay          time.Duration
}

// BrowserPolicyFromConfig reads the confirmation policy from cfg.
func BrowserPolicyFromConfig(cfg *config.Config) BrowserPolicy {
	return BrowserPolicy{
		ConfirmationTimeout: time.Duration(cfg.Browser.ConfirmationTimeout) * time.Second,
		PostConfirmDelay:    time.Duration(cfg.Browser.PostConfirmDelay) * time.Second,
		RetryDelay:          2 * time.Second,
	}
}

// BrowserTransport generates songs through the site UI.
type BrowserTransport struct {
	browser  Browser
	policy   BrowserPolicy
	logger   *slog.Logger
	loggedIn bool
	sleep    func(ctx context.Context, d time.Duration, ctl *Control) error
}

// NewBrowserTransport wraps browser.
func NewBrowserTransport(browser Browser, policy BrowserPolicy, logger *slog.Logger) *BrowserTransport {
	if policy.ConfirmationTimeout <= 0 {
		policy.ConfirmationTimeout = 30 * time.Minute
	}
	return &BrowserTransport{
		browser: browser,
		policy:  policy,
		logger:  logging.NewComponentLogger(logger, "browser-transport"),
		sleep:   Sleep,
	}
}

// Name implements Transport.
func (t *BrowserTransport) Name() string { return config.TransportBrowser }

// Prepare makes sure the browser session is signed in.
func (t *BrowserTransport) Prepare(ctx context.Context, ctl *Control) error {
	if t.loggedIn {
		return nil
	}
	if err := t.browser.EnsureLoggedIn(ctx, ctl.Stopped); err != nil {
		return err
	}
	t.loggedIn = true
	return nil
}

// Submit fills the generation form and captures the job id from the page's
// own API traffic.
func (t *BrowserTransport) Submit(ctx context.Context, rec *catalog.Record) (Submission, error) {
	capture, err := t.browser.Submit(ctx, rec.Prompt, rec.Lyrics)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		JobID:             capture.JobID,
		ConversionIDs:     capture.ConversionIDs,
		ETA:               capture.ETA,
		AuthToken:         capture.AuthToken,
		Raw:               capture.Raw,
		NeedsConfirmation: true,
	}, nil
}

// Track waits for the user to confirm the generation, then reads fresh
// metadata. When no fresh document can be fetched the captured ids are
// returned so URLs can still be reconstructed.
func (t *BrowserTransport) Track(ctx context.Context, sub Submission, ctl *Control) (map[string]any, error) {
	logger := logging.WithContext(ctx, t.logger)
	if err := WaitConfirmed(ctx, ctl, t.policy.ConfirmationTimeout); err != nil {
		return nil, err
	}
	logger.Info("generation confirmed")
	if t.policy.PostConfirmDelay > 0 {
		if err := t.sleep(ctx, t.policy.PostConfirmDelay, ctl); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= freshAttempts; attempt++ {
		doc, err := t.FreshMetadata(ctx, sub)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < freshAttempts {
			if err := t.sleep(ctx, t.policy.RetryDelay, ctl); err != nil {
				return nil, err
			}
		}
	}
	logging.WarnWithContext(logger, "fresh metadata unavailable, using captured ids", "fresh_metadata_failed",
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "the site API may have changed; check the captured response"),
		logging.String(logging.FieldImpact, "download URLs are reconstructed from ids"),
	)
	return capturedDocument(sub), nil
}

// FreshMetadata queries the by-id endpoint from inside the page. The second
// rendition's document is attached under metadata.SecondaryKey.
func (t *BrowserTransport) FreshMetadata(ctx context.Context, sub Submission) (map[string]any, error) {
	primary, secondary, err := t.browser.FetchFresh(ctx, captureOf(sub))
	if err != nil {
		return nil, err
	}
	doc := maps.Clone(primary)
	if doc == nil {
		return nil, services.Wrap(services.ErrService, "jobs", "fresh metadata", "empty document", nil)
	}
	if secondary != nil {
		doc[metadata.SecondaryKey] = secondary
	}
	return doc, nil
}

// MenuDownload downloads a rendition through the song card menu.
func (t *BrowserTransport) MenuDownload(ctx context.Context, sub Submission, title string, rendition int) (artifact.BrowserDownload, error) {
	return t.browser.MenuDownload(ctx, sub.JobID, title, rendition)
}

// Close shuts the browser down.
func (t *BrowserTransport) Close() error {
	if t.browser == nil {
		return nil
	}
	return t.browser.Close()
}

func captureOf(sub Submission) automation.Capture {
	return automation.Capture{
		JobID:         sub.JobID,
		ConversionIDs: sub.ConversionIDs,
		ETA:           sub.ETA,
		AuthToken:     sub.AuthToken,
		Raw:           sub.Raw,
	}
}

func capturedDocument(sub Submission) map[string]any {
	doc := map[string]any{"status": "COMPLETED"}
	if sub.JobID != "" {
		doc["task_id"] = sub.JobID
	}
	if sub.ConversionIDs[0] != "" {
		doc["conversion_id_1"] = sub.ConversionIDs[0]
	}
	if sub.ConversionIDs[1] != "" {
		doc["conversion_id_2"] = sub.ConversionIDs[1]
	}
	return doc
}

// IsStop reports whether err ended a wait because of a stop request.
func IsStop(err error) bool {
	return errors.Is(err, services.ErrStopped)
}
