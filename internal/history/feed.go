package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"songfactory/internal/config"
	"songfactory/internal/logging"
	"songfactory/internal/services"
)

// FeedPageSize is the number of projects the feed returns per page. A
// shorter page is the last one.
const FeedPageSize = 10

// Source discovers history items. emit reports whether an item was new;
// sources use that to stop paging once nothing new arrives.
type Source interface {
	Name() string
	Discover(ctx context.Context, stop func() bool, emit func(Item) bool) error
}

// FeedSource pages through the per-user project feed.
type FeedSource struct {
	base       string
	token      string
	client     *http.Client
	limiter    *rate.Limiter
	retry      services.Retrier
	staleLimit int
	logger     *slog.Logger
}

// FeedOption customizes a FeedSource.
type FeedOption func(*FeedSource)

// WithFeedRetrier overrides how transient feed failures are retried.
func WithFeedRetrier(retry services.Retrier) FeedOption {
	return func(f *FeedSource) {
		f.retry = retry
	}
}

// NewFeedSource builds a feed source from cfg.
func NewFeedSource(cfg *config.Config, logger *slog.Logger, opts ...FeedOption) *FeedSource {
	rps := cfg.History.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	stale := cfg.History.StalePageLimit
	if stale <= 0 {
		stale = 3
	}
	retry := services.NewRetrier()
	retry.MaxAttempts = cfg.API.TransientRetries + 1
	f := &FeedSource{
		base:       strings.TrimRight(cfg.History.APIBase, "/"),
		token:      cfg.History.SessionToken,
		client:     &http.Client{Timeout: cfg.RequestTimeout()},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retry:      retry,
		staleLimit: stale,
		logger:     logging.NewComponentLogger(logger, "history-feed"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Source.
func (f *FeedSource) Name() string { return "feed" }

// UserID resolves the signed-in user.
func (f *FeedSource) UserID(ctx context.Context) (string, error) {
	var payload map[string]any
	if err := f.getJSON(ctx, "user", f.base+"/auth/user", &payload); err != nil {
		return "", err
	}
	src := payload
	if nested, ok := payload["data"].(map[string]any); ok {
		src = nested
	}
	if nested, ok := src["user"].(map[string]any); ok {
		src = nested
	}
	for _, key := range []string{"id", "userId", "user_id"} {
		if id := stringField(src, key); id != "" {
			return id, nil
		}
	}
	return "", services.Wrap(services.ErrCredentialInvalid, "history", "user", "no user id in session response", nil)
}

// Page fetches the projects starting at offset.
func (f *FeedSource) Page(ctx context.Context, userID string, offset int) ([]map[string]any, error) {
	endpoint := fmt.Sprintf("%s/user/%s/infinite-projects?offset=%s",
		f.base, url.PathEscape(userID), strconv.Itoa(offset))
	var payload any
	if err := f.getJSON(ctx, "projects", endpoint, &payload); err != nil {
		return nil, err
	}
	var list []any
	switch v := payload.(type) {
	case []any:
		list = v
	case map[string]any:
		list, _ = v["data"].([]any)
	}
	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if obj, ok := entry.(map[string]any); ok {
			items = append(items, obj)
		}
	}
	return items, nil
}

// Discover emits feed items page by page. Paging ends on an empty or short
// page, or after the configured number of consecutive pages with nothing new.
func (f *FeedSource) Discover(ctx context.Context, stop func() bool, emit func(Item) bool) error {
	ctx = services.WithStopCheck(ctx, stop)
	userID, err := f.UserID(ctx)
	if err != nil {
		return err
	}
	logger := f.logger.With(logging.String("user_id", userID))
	offset, stale, total := 0, 0, 0
	for {
		if stop != nil && stop() {
			return services.ErrStopped
		}
		page, err := f.Page(ctx, userID, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		fresh := 0
		for _, raw := range page {
			if emit(ItemFromFeed(raw)) {
				fresh++
			}
		}
		total += len(page)
		logger.Debug("feed page read", logging.Int("offset", offset), logging.Int("items", len(page)), logging.Int("new", fresh))
		if fresh == 0 {
			stale++
			if stale >= f.staleLimit {
				logger.Info("stopping after pages with no new items", logging.Int("stale_pages", stale))
				break
			}
		} else {
			stale = 0
		}
		if len(page) < FeedPageSize {
			break
		}
		offset += len(page)
	}
	logger.Info("feed discovery finished", logging.Int("items", total))
	return nil
}

// getJSON retries transient failures (network errors, 5xx and 429) with
// backoff before giving up.
func (f *FeedSource) getJSON(ctx context.Context, op, endpoint string, out any) error {
	return f.retry.Do(ctx, func(attempt int) error {
		err := f.getJSONOnce(ctx, op, endpoint, out)
		if err != nil && services.IsTransient(err) {
			logging.WarnWithContext(f.logger, "feed request failed", "history_feed_retry",
				logging.String("op", op),
				logging.Int("attempt", attempt),
				logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
				logging.Error(err),
			)
		}
		return err
	})
}

func (f *FeedSource) getJSONOnce(ctx context.Context, op, endpoint string, out any) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "history", op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		token := f.token
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}
	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "history", op, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return services.Wrap(services.ErrNetwork, "history", op, "read body", err)
	}
	f.logger.Debug("feed request", logging.String("op", op), logging.Int("status", resp.StatusCode), logging.Duration("elapsed", time.Since(started)))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrCredentialInvalid, "history", op,
			fmt.Sprintf("HTTP %d; set history.session_token", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, "history", op, "HTTP 429", nil)
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrNetwork, "history", op, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode >= 300:
		return services.Wrap(services.ErrService, "history", op, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrService, "history", op, "decode response", err)
	}
	return nil
}

// ItemFromFeed maps one feed project onto an Item. Prompt, lyrics and
// conversion ids live in the project's queue_task.input_payload.
func ItemFromFeed(raw map[string]any) Item {
	payload := map[string]any{}
	if task, ok := raw["queue_task"].(map[string]any); ok {
		if input, ok := task["input_payload"].(map[string]any); ok {
			payload = input
		}
	}
	item := Item{
		JobID:      stringField(raw, "id", "task_id", "taskId"),
		Title:      stringField(raw, "track_name", "name", "title"),
		Prompt:     stringField(payload, "prompt"),
		Lyrics:     stringField(payload, "lyrics"),
		AudioURL:   stringField(raw, "track_url", "audio_url"),
		Status:     stringField(raw, "conversion_status", "status"),
		MusicStyle: stringField(raw, "music_style", "musicStyle", "style"),
		CreatedAt:  stringField(raw, "createdAt", "created_at", "date_added"),
		Raw:        raw,
	}
	if item.Prompt == "" {
		item.Prompt = stringField(raw, "prompt")
	}
	item.ConversionIDs[0] = stringField(payload, "conversion_id_1")
	item.ConversionIDs[1] = stringField(payload, "conversion_id_2")
	return item
}

func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
