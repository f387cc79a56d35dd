package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"songfactory/internal/artifact"
	"songfactory/internal/automation"
	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/selectors"
	"songfactory/internal/services/musicgpt"
)

// ErrUnsupported is returned by transports that cannot perform an optional
// step.
var ErrUnsupported = errors.New("not supported by this transport")

// Submission is the job accepted by the service for one record.
type Submission struct {
	JobID         string
	ConversionIDs [2]string
	ETA           string
	AuthToken     string
	Raw           map[string]any
	// NeedsConfirmation is set when the user must confirm the generation in
	// the browser before tracking can finish.
	NeedsConfirmation bool
}

// Transport submits songs and follows them to a terminal state.
type Transport interface {
	Name() string
	Submit(ctx context.Context, rec *catalog.Record) (Submission, error)
	// Track blocks until the job is terminal and returns the raw service
	// document.
	Track(ctx context.Context, sub Submission, ctl *Control) (map[string]any, error)
	FreshMetadata(ctx context.Context, sub Submission) (map[string]any, error)
	MenuDownload(ctx context.Context, sub Submission, title string, rendition int) (artifact.BrowserDownload, error)
	Close() error
}

// Preparer is implemented by transports that need a setup step before the
// first submission of a run.
type Preparer interface {
	Prepare(ctx context.Context, ctl *Control) error
}

// TransportFactory builds the transport for a run.
type TransportFactory func(cfg *config.Config, name string, logger *slog.Logger) (Transport, error)

// NewTransport builds the named transport from cfg.
func NewTransport(cfg *config.Config, name string, logger *slog.Logger) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", config.TransportAPI:
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		client := musicgpt.NewClient(musicgpt.ConfigFrom(cfg), musicgpt.WithLogger(logger))
		return NewAPITransport(client, APIPolicyFromConfig(cfg), logger), nil
	case config.TransportBrowser:
		registry := selectors.Open(cfg.SelectorRegistryPath(), logger)
		if err := registry.RegisterDefaults(); err != nil {
			return nil, fmt.Errorf("register selector defaults: %w", err)
		}
		driver := automation.New(automation.OptionsFromConfig(cfg), registry, logger)
		return NewBrowserTransport(driver, BrowserPolicyFromConfig(cfg), logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}
