package musicgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"songfactory/internal/config"
	"songfactory/internal/logging"
	"songfactory/internal/services"
)

const (
	// DefaultBaseURL is the public MusicGPT API root.
	DefaultBaseURL     = "https://api.musicgpt.com/api/public/v1"
	defaultHTTPTimeout = 30 * time.Second
	conversionType     = "MUSIC_AI"
	maxBodyBytes       = 8 << 20
)

// Config captures the runtime settings required to talk to the API.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

// ConfigFrom extracts client settings from application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:         cfg.API.APIKey,
		BaseURL:        cfg.API.BaseURL,
		TimeoutSeconds: cfg.API.RequestTimeout,
	}
}

// Client wraps the MusicGPT HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "musicgpt")
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(nil, "musicgpt"),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = DefaultBaseURL
	}
	return client
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c != nil && c.cfg.APIKey != ""
}

// SubmitResult is the parsed response of a generation request.
type SubmitResult struct {
	TaskID        string
	ConversionIDs [2]string
	ETA           string
	Raw           map[string]any
}

type submitRequest struct {
	Prompt string `json:"prompt"`
	Lyrics string `json:"lyrics"`
}

// Submit starts a generation. A response without a job id is returned
// alongside a service_error so callers can still keep any conversion ids.
func (c *Client) Submit(ctx context.Context, prompt, lyrics string) (SubmitResult, error) {
	var result SubmitResult
	if c.cfg.APIKey == "" {
		return result, services.Wrap(services.ErrCredentialInvalid, "musicgpt", "submit", "api key required", nil)
	}
	encoded, err := json.Marshal(submitRequest{Prompt: prompt, Lyrics: lyrics})
	if err != nil {
		return result, fmt.Errorf("musicgpt submit: encode body: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "MusicAI")
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "musicgpt", "submit", "build url", err)
	}
	logging.WithContext(ctx, c.logger).Info("submitting generation",
		logging.Int("prompt_chars", len(prompt)),
		logging.Int("lyrics_chars", len(lyrics)),
	)

	payload, err := c.do(ctx, "submit", http.MethodPost, endpoint, encoded)
	if err != nil {
		return result, err
	}
	result.Raw = payload
	src := payload
	if nested, ok := payload["data"].(map[string]any); ok {
		src = nested
	}
	result.TaskID = firstField(src, "task_id", "taskId")
	result.ConversionIDs = [2]string{firstField(src, "conversion_id_1"), firstField(src, "conversion_id_2")}
	result.ETA = firstField(src, "eta")
	if result.TaskID == "" {
		return result, services.Wrap(services.ErrService, "musicgpt", "submit", "no job id returned", nil)
	}
	logging.WithContext(ctx, c.logger).Info("generation submitted",
		logging.String(logging.FieldJobID, result.TaskID),
		logging.String("conversion_id_1", result.ConversionIDs[0]),
		logging.String("conversion_id_2", result.ConversionIDs[1]),
		logging.String("eta", result.ETA),
	)
	return result, nil
}

// Status fetches the raw status document for a job id.
func (c *Client) Status(ctx context.Context, taskID string) (map[string]any, error) {
	return c.byID(ctx, "task_id", taskID)
}

// StatusByConversionID fetches the raw status document for one rendition.
func (c *Client) StatusByConversionID(ctx context.Context, conversionID string) (map[string]any, error) {
	return c.byID(ctx, "conversion_id", conversionID)
}

func (c *Client) byID(ctx context.Context, key, id string) (map[string]any, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("musicgpt status: %s required", key)
	}
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrCredentialInvalid, "musicgpt", "status", "api key required", nil)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "byId")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "musicgpt", "status", "build url", err)
	}
	query := url.Values{}
	query.Set("conversionType", conversionType)
	query.Set(key, id)
	return c.do(ctx, "status", http.MethodGet, endpoint+"?"+query.Encode(), nil)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("musicgpt %s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrNetwork, "musicgpt", op, fmt.Sprintf("http error (timeout=%s)", c.httpClient.Timeout), err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, "musicgpt", op, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			RetryAfter: retryAfter,
		}
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, services.Wrap(services.ErrService, "musicgpt", op, "decode response", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func firstField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		switch value := data[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		case json.Number:
			return value.String()
		}
	}
	return ""
}
