package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	t.Setenv("HOME", testsupport.BaseDir(cfg))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestConfigInitWritesSampleOnce(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "", "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration to "+target)
	_, err = os.Stat(target)
	require.NoError(t, err)

	_, err = runCLI(t, "", "config", "init", "--path", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--overwrite")

	_, err = runCLI(t, "", "config", "init", "--path", target, "--overwrite")
	require.NoError(t, err)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.API.APIKey = "sk-1234567890"
	writeTestConfig(t, env.configPath, env.cfg)

	out, err := runCLI(t, env.configPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "sk-1****")
	assert.NotContains(t, out, "sk-1234567890")
}

func TestCatalogAddListShowRetry(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog is empty")

	out, err = runCLI(t, env.configPath, "catalog", "add", "--title", "Night Drive", "--prompt", "synthwave, 90 bpm", "--genre", "synth")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued #1 Night Drive")

	lyricsPath := filepath.Join(testsupport.BaseDir(env.cfg), "lyrics.txt")
	require.NoError(t, os.WriteFile(lyricsPath, []byte("first line\nsecond line"), 0o644))
	_, err = runCLI(t, env.configPath, "catalog", "add", "--title", "Second", "--lyrics-file", lyricsPath)
	require.NoError(t, err)

	out, err = runCLI(t, env.configPath, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Night Drive")
	assert.Contains(t, out, "Second")

	out, err = runCLI(t, env.configPath, "catalog", "show", "2", "--json")
	require.NoError(t, err)
	var rec catalog.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "first line\nsecond line", rec.Lyrics)
	assert.Equal(t, catalog.StatusQueued, rec.Status)

	_, err = runCLI(t, env.configPath, "catalog", "show", "9")
	require.Error(t, err)

	out, err = runCLI(t, env.configPath, "catalog", "retry")
	require.NoError(t, err)
	assert.Contains(t, out, "Requeued 0 record(s)")
}

func TestCatalogAddRequiresTitle(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.configPath, "catalog", "add", "--prompt", "ambient")
	require.Error(t, err)
}

func TestCatalogListRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.configPath, "catalog", "list", "--status", "finished")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestQueueRunDryRunCompletesRecords(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.configPath, "catalog", "add", "--title", "Dry Song")
	require.NoError(t, err)

	out, err := runCLI(t, env.configPath, "queue", "run", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 Dry Song")
	assert.Contains(t, out, "Processed 1: 1 completed, 0 failed")

	out, err = runCLI(t, env.configPath, "queue", "status", "--json")
	require.NoError(t, err)
	var stats map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats[string(catalog.StatusCompleted)])

	out, err = runCLI(t, env.configPath, "queue", "run", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "No queued songs")
}

func TestQueueRunRejectsBadIDs(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.configPath, "queue", "run", "--dry-run", "--ids", "1,x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid record id")
}

func TestPreflightPassesWithAPIKey(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env.configPath, "preflight")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS")
	assert.NotContains(t, out, "FAIL")

	env.cfg.API.APIKey = ""
	t.Setenv("MUSICGPT_API_KEY", "")
	writeTestConfig(t, env.configPath, env.cfg)
	out, err = runCLI(t, env.configPath, "preflight")
	require.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestSelectorsListAndReset(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "selectors", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "prompt_textarea")
	assert.Contains(t, out, "Registry: "+env.cfg.SelectorRegistryPath())

	out, err = runCLI(t, env.configPath, "selectors", "reset", "prompt_textarea")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset 1 group(s)")

	_, err = runCLI(t, env.configPath, "selectors", "reset", "no_such_group")
	require.Error(t, err)
}

func TestTestNotifyRequiresTopic(t *testing.T) {
	t.Setenv("SONGFACTORY_NTFY_TOPIC", "")
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.configPath, "test-notify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ntfy_topic")
}
