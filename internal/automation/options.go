package automation

import (
	"path/filepath"
	"strings"
	"time"

	"songfactory/internal/config"
)

// Options controls browser launch and automation timeouts.
type Options struct {
	SiteURL         string
	APIBase         string
	ChromePath      string
	Headless        bool
	ProfileDir      string
	ScreenshotDir   string
	DownloadDir     string
	LoginTimeout    time.Duration
	CaptureWindow   time.Duration
	ElementTimeout  time.Duration
	PageLoadTimeout time.Duration
	DownloadTimeout time.Duration
	MaxScreenshots  int
}

// OptionsFromConfig maps application config onto driver options.
func OptionsFromConfig(cfg *config.Config) Options {
	b := cfg.Browser
	return Options{
		SiteURL:         b.SiteURL,
		APIBase:         cfg.API.BaseURL,
		ChromePath:      b.ChromePath,
		Headless:        b.Headless,
		ProfileDir:      cfg.BrowserProfileDir(),
		ScreenshotDir:   cfg.ScreenshotDir(),
		DownloadDir:     filepath.Join(cfg.Paths.StateDir, "downloads"),
		LoginTimeout:    time.Duration(b.LoginTimeout) * time.Second,
		CaptureWindow:   time.Duration(b.CaptureWindow) * time.Second,
		ElementTimeout:  time.Duration(b.ElementTimeoutMS) * time.Millisecond,
		PageLoadTimeout: time.Duration(b.PageLoadTimeoutMS) * time.Millisecond,
		DownloadTimeout: cfg.DownloadTimeout(),
		MaxScreenshots:  b.MaxScreenshots,
	}
}

func (o Options) withDefaults() Options {
	o.SiteURL = strings.TrimRight(strings.TrimSpace(o.SiteURL), "/")
	if o.SiteURL == "" {
		o.SiteURL = "https://lalals.com"
	}
	o.APIBase = strings.TrimRight(strings.TrimSpace(o.APIBase), "/")
	if o.APIBase == "" {
		o.APIBase = "https://api.musicgpt.com/api/public/v1"
	}
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = 5 * time.Minute
	}
	if o.CaptureWindow <= 0 {
		o.CaptureWindow = 30 * time.Second
	}
	if o.ElementTimeout <= 0 {
		o.ElementTimeout = 5 * time.Second
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 15 * time.Second
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 30 * time.Second
	}
	if o.MaxScreenshots <= 0 {
		o.MaxScreenshots = DefaultMaxScreenshots
	}
	return o
}

// MusicURL is the authenticated generation page.
func (o Options) MusicURL() string {
	return o.SiteURL + "/music"
}

// LoginURL is the sign-in page.
func (o Options) LoginURL() string {
	return o.SiteURL + "/auth/sign-in"
}

// ProfileURL is the public audio page of a user.
func (o Options) ProfileURL(username string) string {
	return o.SiteURL + "/user/" + strings.TrimSpace(username) + "/audio"
}

// IsAuthURL reports whether a URL belongs to the sign-in flow.
func IsAuthURL(url string) bool {
	return strings.Contains(url, "/auth/")
}
