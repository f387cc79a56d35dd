package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"songfactory/internal/catalog"
	"songfactory/internal/config"
)

// chromeCandidates are looked up on PATH when no chrome_path is configured.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAPIKey verifies that the direct API transport has credentials.
func CheckAPIKey(cfg *config.Config) Result {
	const name = "MusicGPT API key"
	if err := cfg.RequireAPIKey(); err != nil {
		return Result{Name: name, Detail: "missing (set api.api_key or MUSICGPT_API_KEY)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckChrome verifies that a Chrome or Chromium binary is available.
func CheckChrome(configured string) Result {
	const name = "Chrome"
	if path := strings.TrimSpace(configured); path != "" {
		if err := unix.Access(path, unix.X_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: not executable: %v)", path, err)}
		}
		return Result{Name: name, Passed: true, Detail: path}
	}
	for _, candidate := range chromeCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return Result{Name: name, Passed: true, Detail: path}
		}
	}
	return Result{Name: name, Detail: "no Chrome or Chromium binary on PATH (set browser.chrome_path)"}
}

// CheckSelectorRegistry verifies the registry file is readable JSON. A
// missing file passes because defaults are written on first use.
func CheckSelectorRegistry(path string) Result {
	const name = "Selector registry"
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not created yet, defaults apply)", path)}
	}
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !json.Valid(data) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not valid JSON; run selectors reset)", path)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckCatalog opens the catalog database, creating the schema when needed.
func CheckCatalog(ctx context.Context, path string) Result {
	const name = "Catalog"
	store, err := catalog.OpenPath(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	stats, err := store.Stats(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d records)", path, total)}
}
