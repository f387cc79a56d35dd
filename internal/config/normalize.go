package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeGeneration()
	c.normalizeAPI()
	c.normalizeArtifacts()
	c.normalizeBrowser()
	c.normalizeHistory()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		c.Paths.LibraryDir = defaultLibraryDir
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Browser.ChromePath, err = expandPath(strings.TrimSpace(c.Browser.ChromePath)); err != nil {
		return fmt.Errorf("browser.chrome_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.Transport = strings.ToLower(strings.TrimSpace(c.Generation.Transport))
	if c.Generation.Transport == "" {
		c.Generation.Transport = defaultTransport
	}
}

func (c *Config) normalizeAPI() {
	if strings.TrimSpace(c.API.APIKey) == "" {
		if value, ok := os.LookupEnv(envAPIKey); ok {
			c.API.APIKey = value
		}
	}
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
}

func (c *Config) normalizeArtifacts() {
	c.Artifacts.StorageBase = strings.TrimRight(strings.TrimSpace(c.Artifacts.StorageBase), "/")
	if c.Artifacts.StorageBase == "" {
		c.Artifacts.StorageBase = defaultStorageBase
	}
	roots := make([]string, 0, len(c.Artifacts.PlaceholderRoots))
	seen := make(map[string]struct{}, len(c.Artifacts.PlaceholderRoots))
	for _, root := range c.Artifacts.PlaceholderRoots {
		root = strings.TrimRight(strings.TrimSpace(root), "/")
		if root == "" {
			continue
		}
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	c.Artifacts.PlaceholderRoots = roots
}

func (c *Config) normalizeBrowser() {
	c.Browser.SiteURL = strings.TrimRight(strings.TrimSpace(c.Browser.SiteURL), "/")
	if c.Browser.SiteURL == "" {
		c.Browser.SiteURL = defaultSiteURL
	}
}

func (c *Config) normalizeHistory() {
	c.History.APIBase = strings.TrimRight(strings.TrimSpace(c.History.APIBase), "/")
	if c.History.APIBase == "" {
		c.History.APIBase = defaultHistoryAPIBase
	}
	if strings.TrimSpace(c.History.Username) == "" {
		if value, ok := os.LookupEnv(envHistoryUsername); ok {
			c.History.Username = value
		}
	}
	c.History.Username = strings.TrimSpace(c.History.Username)
	if strings.TrimSpace(c.History.SessionToken) == "" {
		if value, ok := os.LookupEnv(envHistoryToken); ok {
			c.History.SessionToken = value
		}
	}
	c.History.SessionToken = strings.TrimSpace(c.History.SessionToken)
}

func (c *Config) normalizeNotifications() {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		if value, ok := os.LookupEnv(envNtfyTopic); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Serve.Listen = strings.TrimSpace(c.Serve.Listen)
	if c.Serve.Listen == "" {
		c.Serve.Listen = defaultServeListen
	}
	c.Serve.Schedule = strings.TrimSpace(c.Serve.Schedule)
	c.Serve.Token = strings.TrimSpace(c.Serve.Token)
}
