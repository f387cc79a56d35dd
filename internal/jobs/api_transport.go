package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"songfactory/internal/artifact"
	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
	"songfactory/internal/services/musicgpt"
)

// APIPolicy bounds polling of the status endpoint.
type APIPolicy struct {
	PollInterval      time.Duration
	GenerationTimeout time.Duration
	RateLimitRetries  int
	TransientRetries  int
}

// APIPolicyFromConfig reads the polling policy from cfg.
func APIPolicyFromConfig(cfg *config.Config) APIPolicy {
	return APIPolicy{
		PollInterval:      cfg.PollInterval(),
		GenerationTimeout: cfg.GenerationTimeout(),
		RateLimitRetries:  cfg.API.RateLimitRetries,
		TransientRetries:  cfg.API.TransientRetries,
	}
}

// APIClient is the part of the MusicGPT client the transport uses.
type APIClient interface {
	Submit(ctx context.Context, prompt, lyrics string) (musicgpt.SubmitResult, error)
	Status(ctx context.Context, taskID string) (map[string]any, error)
	StatusByConversionID(ctx context.Context, conversionID string) (map[string]any, error)
}

// APITransport talks to the MusicGPT HTTP API directly.
type APITransport struct {
	client APIClient
	policy APIPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration, ctl *Control) error
	now    func() time.Time
}

// NewAPITransport builds an API transport.
func NewAPITransport(client APIClient, policy APIPolicy, logger *slog.Logger) *APITransport {
	if policy.PollInterval <= 0 {
		policy.PollInterval = 10 * time.Second
	}
	if policy.GenerationTimeout <= 0 {
		policy.GenerationTimeout = 10 * time.Minute
	}
	return &APITransport{
		client: client,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "api-transport"),
		sleep:  Sleep,
		now:    time.Now,
	}
}

// Name implements Transport.
func (t *APITransport) Name() string { return config.TransportAPI }

// Submit implements Transport.
func (t *APITransport) Submit(ctx context.Context, rec *catalog.Record) (Submission, error) {
	res, err := t.client.Submit(ctx, rec.Prompt, rec.Lyrics)
	sub := Submission{
		JobID:         res.TaskID,
		ConversionIDs: res.ConversionIDs,
		ETA:           res.ETA,
		Raw:           res.Raw,
	}
	return sub, err
}

// Track polls the status endpoint until the job completes or fails.
// Rate limiting backs off exponentially and transient failures are retried
// within the policy limits. Both counters reset after a successful poll.
func (t *APITransport) Track(ctx context.Context, sub Submission, ctl *Control) (map[string]any, error) {
	logger := logging.WithContext(ctx, t.logger)
	deadline := t.now().Add(t.policy.GenerationTimeout)
	rateHits, transientHits := 0, 0
	polls := 0

	for {
		if ctl.Stopped() {
			return nil, services.ErrStopped
		}
		doc, err := t.client.Status(ctx, sub.JobID)
		wait := t.policy.PollInterval
		switch {
		case err == nil:
			polls++
			rateHits, transientHits = 0, 0
			status := metadata.StatusOf(doc)
			if metadata.IsCompletedStatus(status) || metadata.IsFailedStatus(status) {
				logger.Info("job reached terminal status",
					logging.String("status", status),
					logging.Int("polls", polls),
				)
				return doc, nil
			}
			logger.Debug("job still running", logging.String("status", status), logging.Int("polls", polls))
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			if statusErr, ok := musicgpt.AsStatusError(err); ok && statusErr.NonRetryable() {
				return nil, err
			}
			switch services.KindOf(err) {
			case services.KindRateLimited:
				rateHits++
				if rateHits > t.policy.RateLimitRetries {
					return nil, err
				}
				wait = t.policy.PollInterval * time.Duration(1<<rateHits)
				if statusErr, ok := musicgpt.AsStatusError(err); ok && statusErr.RetryAfter > wait {
					wait = statusErr.RetryAfter
				}
				logging.WarnWithContext(logger, "status poll rate limited", "poll_rate_limited",
					logging.Int("attempt", rateHits),
					logging.Duration("backoff", wait),
					logging.String(logging.FieldErrorHint, "reduce concurrent use of the API key"),
					logging.String(logging.FieldImpact, "polling slowed down"),
				)
			case services.KindNetwork:
				transientHits++
				if transientHits > t.policy.TransientRetries {
					return nil, err
				}
				logging.WarnWithContext(logger, "status poll failed, retrying", "poll_transient_error",
					logging.Int("attempt", transientHits),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check network connectivity"),
					logging.String(logging.FieldImpact, "poll retried after the interval"),
				)
			default:
				return nil, err
			}
		}

		if !t.now().Add(wait).Before(deadline) {
			return nil, services.Wrap(services.ErrTimeout, "jobs", "poll",
				fmt.Sprintf("no terminal status after %s", t.policy.GenerationTimeout), nil)
		}
		if err := t.sleep(ctx, wait, ctl); err != nil {
			return nil, err
		}
	}
}

// FreshMetadata re-queries the job by id, falling back to the first
// conversion id.
func (t *APITransport) FreshMetadata(ctx context.Context, sub Submission) (map[string]any, error) {
	var errs []error
	if sub.JobID != "" {
		doc, err := t.client.Status(ctx, sub.JobID)
		if err == nil {
			return doc, nil
		}
		errs = append(errs, err)
	}
	if sub.ConversionIDs[0] != "" {
		doc, err := t.client.StatusByConversionID(ctx, sub.ConversionIDs[0])
		if err == nil {
			return doc, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, services.Wrap(services.ErrNoArtifactResolved, "jobs", "fresh metadata", "no job or conversion id", nil)
	}
	return nil, errors.Join(errs...)
}

// MenuDownload is only available through the browser.
func (t *APITransport) MenuDownload(context.Context, Submission, string, int) (artifact.BrowserDownload, error) {
	return nil, ErrUnsupported
}

// Close implements Transport.
func (t *APITransport) Close() error { return nil }
