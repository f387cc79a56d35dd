package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Transport names accepted by generation.transport.
const (
	TransportAPI     = "api"
	TransportBrowser = "browser"
)

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir" validate:"required"`
	StateDir   string `toml:"state_dir" validate:"required"`
	LogDir     string `toml:"log_dir" validate:"required"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" validate:"oneof=console json"`
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
}

// Generation controls how queued catalog records are processed.
type Generation struct {
	Transport         string `toml:"transport" validate:"oneof=api browser"`
	DelayBetweenItems int    `toml:"delay_between_items" validate:"gte=0"`
	MaxItemsPerRun    int    `toml:"max_items_per_run" validate:"gte=0"`
	DryRun            bool   `toml:"dry_run"`
}

// API contains settings for the direct HTTP generation service.
type API struct {
	BaseURL           string `toml:"base_url" validate:"required,url"`
	APIKey            string `toml:"api_key"`
	RequestTimeout    int    `toml:"request_timeout" validate:"gt=0"`
	PollInterval      int    `toml:"poll_interval" validate:"gt=0"`
	GenerationTimeout int    `toml:"generation_timeout" validate:"gt=0"`
	RateLimitRetries  int    `toml:"rate_limit_retries" validate:"gte=0"`
	TransientRetries  int    `toml:"transient_retries" validate:"gte=0"`
	VerifyRemoteSize  bool   `toml:"verify_remote_size"`
}

// Artifacts contains download validation and storage URL settings.
type Artifacts struct {
	MinBytes         int64    `toml:"min_bytes" validate:"gt=0"`
	SizeTolerance    float64  `toml:"size_tolerance" validate:"gte=0,lt=1"`
	StorageBase      string   `toml:"storage_base" validate:"required,url"`
	PlaceholderRoots []string `toml:"placeholder_roots"`
	DownloadTimeout  int      `toml:"download_timeout" validate:"gt=0"`
}

// Browser contains settings for the automation transport.
type Browser struct {
	Headless            bool   `toml:"headless"`
	ChromePath          string `toml:"chrome_path"`
	SiteURL             string `toml:"site_url" validate:"required,url"`
	LoginTimeout        int    `toml:"login_timeout" validate:"gt=0"`
	CaptureWindow       int    `toml:"capture_window" validate:"gt=0"`
	ElementTimeoutMS    int    `toml:"element_timeout_ms" validate:"gt=0"`
	PageLoadTimeoutMS   int    `toml:"page_load_timeout_ms" validate:"gt=0"`
	ConfirmationTimeout int    `toml:"confirmation_timeout" validate:"gt=0"`
	PostConfirmDelay    int    `toml:"post_confirm_delay" validate:"gte=0"`
	MaxScreenshots      int    `toml:"max_screenshots" validate:"gt=0"`
}

// History contains settings for discovery of previously generated songs.
type History struct {
	APIBase           string  `toml:"api_base" validate:"required,url"`
	Username          string  `toml:"username"`
	SessionToken      string  `toml:"session_token"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
	StalePageLimit    int     `toml:"stale_page_limit" validate:"gt=0"`
	MaxLoadMore       int     `toml:"max_load_more" validate:"gt=0"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout" validate:"gt=0"`
}

// Serve contains settings for the long-running serve mode.
type Serve struct {
	Listen   string `toml:"listen"`
	Schedule string `toml:"schedule"`
	Token    string `toml:"token"`
}

// Config encapsulates all configuration values for songfactory.
//
// Configuration sections by subsystem:
//   - Paths: library, state and log directories
//   - Logging: log format and level
//   - Generation: transport selection and session pacing
//   - API: direct HTTP service credentials and polling budgets
//   - Artifacts: download validation and storage URL reconstruction
//   - Browser: automation transport timeouts
//   - History: discovery feed and profile settings
//   - Notifications: ntfy push notification settings
//   - Serve: schedule and websocket listener for serve mode
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Generation    Generation    `toml:"generation"`
	API           API           `toml:"api"`
	Artifacts     Artifacts     `toml:"artifacts"`
	Browser       Browser       `toml:"browser"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Serve         Serve         `toml:"serve"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	loadDotEnv(filepath.Dir(resolvedPath))

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env files next to the config file and in the working
// directory. Existing environment variables always win.
func loadDotEnv(configDir string) {
	candidates := []string{".env"}
	if configDir != "" {
		candidates = append([]string{filepath.Join(configDir, ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("songfactory.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories every command relies on.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LibraryDir, c.Paths.StateDir, c.Paths.LogDir, c.ScreenshotDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CatalogPath is the SQLite database holding catalog records.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.StateDir, "songfactory.db")
}

// SelectorRegistryPath is the JSON file backing the selector registry.
func (c *Config) SelectorRegistryPath() string {
	return filepath.Join(c.Paths.StateDir, "selector_registry.json")
}

// ScreenshotDir holds automation failure screenshots.
func (c *Config) ScreenshotDir() string {
	return filepath.Join(c.Paths.StateDir, "screenshots")
}

// BrowserProfileDir is the Chrome user-data directory reused across runs so
// login sessions persist.
func (c *Config) BrowserProfileDir() string {
	return filepath.Join(c.Paths.StateDir, "browser-profile")
}

// LockPath guards single-instance serve mode.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "songfactory.lock")
}

// RunLockPath is held for the length of every queue or history run so runs
// from separate processes never overlap.
func (c *Config) RunLockPath() string {
	return filepath.Join(c.Paths.StateDir, "run.lock")
}

// PollInterval returns the API polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.API.PollInterval) * time.Second
}

// GenerationTimeout returns the hard deadline for API polling.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.API.GenerationTimeout) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout for the API client.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// DelayBetweenItems returns the politeness delay between queue items.
func (c *Config) DelayBetweenItems() time.Duration {
	return time.Duration(c.Generation.DelayBetweenItems) * time.Second
}

// DownloadTimeout returns the per-download HTTP timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Artifacts.DownloadTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
