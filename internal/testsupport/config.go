package testsupport

import (
	"path/filepath"
	"testing"

	"songfactory/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Delays are zeroed so runners do not sleep between items.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.APIKey = "test-key"
	cfgVal.Generation.DelayBetweenItems = 0
	cfgVal.Browser.PostConfirmDelay = 0
	cfgVal.Serve.Listen = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIBase points the MusicGPT client at a test server.
func WithAPIBase(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = baseURL
	}
}

// WithHistoryBase points the history feed at a test server.
func WithHistoryBase(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.APIBase = baseURL
		b.cfg.History.RequestsPerSecond = 1000
	}
}

// WithStorageBase overrides the storage URL convention root.
func WithStorageBase(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Artifacts.StorageBase = baseURL
	}
}

// WithMinBytes overrides the minimum accepted artifact size.
func WithMinBytes(n int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Artifacts.MinBytes = n
	}
}

// WithTransport selects the generation transport.
func WithTransport(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.Transport = name
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LibraryDir)
}
