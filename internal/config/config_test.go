package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"songfactory/internal/config"
)

func TestLoadDefaultConfigUsesEnvAPIKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("MUSICGPT_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "songfactory")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "Music", "SongFactory") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.API.APIKey != "test-key" {
		t.Fatalf("expected API key from env, got %q", cfg.API.APIKey)
	}
	if cfg.Generation.Transport != config.TransportAPI {
		t.Fatalf("expected api transport by default, got %q", cfg.Generation.Transport)
	}
	if cfg.API.PollInterval != 10 || cfg.API.GenerationTimeout != 600 {
		t.Fatalf("unexpected polling defaults: %+v", cfg.API)
	}
	if len(cfg.Artifacts.PlaceholderRoots) != 1 || cfg.Artifacts.PlaceholderRoots[0] != "https://lalals.s3.amazonaws.com" {
		t.Fatalf("unexpected placeholder roots: %v", cfg.Artifacts.PlaceholderRoots)
	}
	if cfg.CatalogPath() != filepath.Join(wantState, "songfactory.db") {
		t.Fatalf("unexpected catalog path: %q", cfg.CatalogPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.LibraryDir, cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.ScreenshotDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "songfactory.toml")

	type payload struct {
		Generation struct {
			Transport         string `toml:"transport"`
			DelayBetweenItems int    `toml:"delay_between_items"`
		} `toml:"generation"`
		API struct {
			APIKey  string `toml:"api_key"`
			BaseURL string `toml:"base_url"`
		} `toml:"api"`
		Artifacts struct {
			PlaceholderRoots []string `toml:"placeholder_roots"`
		} `toml:"artifacts"`
	}
	custom := payload{}
	custom.Generation.Transport = "Browser"
	custom.Generation.DelayBetweenItems = 5
	custom.API.APIKey = "abc123"
	custom.API.BaseURL = "https://example.com/v1/"
	custom.Artifacts.PlaceholderRoots = []string{"https://bucket.example.com/", "https://bucket.example.com", " "}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Generation.Transport != config.TransportBrowser {
		t.Fatalf("expected transport to be normalized to browser, got %q", cfg.Generation.Transport)
	}
	if cfg.DelayBetweenItems().Seconds() != 5 {
		t.Fatalf("expected 5s delay, got %s", cfg.DelayBetweenItems())
	}
	if cfg.API.BaseURL != "https://example.com/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if len(cfg.Artifacts.PlaceholderRoots) != 1 || cfg.Artifacts.PlaceholderRoots[0] != "https://bucket.example.com" {
		t.Fatalf("expected deduplicated placeholder roots, got %v", cfg.Artifacts.PlaceholderRoots)
	}
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("MUSICGPT_API_KEY", "")
	os.Unsetenv("MUSICGPT_API_KEY")

	configPath := filepath.Join(tempDir, "songfactory.toml")
	if err := os.WriteFile(configPath, []byte("[generation]\ntransport = \"api\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte("MUSICGPT_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MUSICGPT_API_KEY") })

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.APIKey != "from-dotenv" {
		t.Fatalf("expected API key from .env, got %q", cfg.API.APIKey)
	}
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Transport = "carrier-pigeon"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "generation.transport") {
		t.Fatalf("expected error to name generation.transport, got %v", err)
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Serve.Schedule = "every tuesday"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected schedule validation error")
	}
	cfg.Serve.Schedule = "*/15 * * * *"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireAPIKey(); err == nil {
		t.Fatal("expected missing key error")
	}
	cfg.API.APIKey = "key"
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Browser.MaxScreenshots != 20 {
		t.Fatalf("unexpected max screenshots: %d", cfg.Browser.MaxScreenshots)
	}
}
