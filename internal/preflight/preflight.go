package preflight

import (
	"context"

	"songfactory/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the preflight checks that apply to the configured
// transport.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCatalog(ctx, cfg.CatalogPath()),
	}

	switch cfg.Generation.Transport {
	case config.TransportBrowser:
		results = append(results,
			CheckChrome(cfg.Browser.ChromePath),
			CheckSelectorRegistry(cfg.SelectorRegistryPath()),
		)
	default:
		results = append(results, CheckAPIKey(cfg))
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
