package config

const (
	defaultConfigPath = "~/.config/songfactory/config.toml"

	defaultLibraryDir = "~/Music/SongFactory"
	defaultStateDir   = "~/.local/share/songfactory"
	defaultLogDir     = "~/.local/share/songfactory/logs"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"

	defaultTransport         = TransportAPI
	defaultDelayBetweenItems = 30
	defaultMaxItemsPerRun    = 20

	defaultAPIBaseURL           = "https://api.musicgpt.com/api/public/v1"
	defaultAPIRequestTimeout    = 30
	defaultAPIPollInterval      = 10
	defaultAPIGenerationTimeout = 600
	defaultRateLimitRetries     = 3
	defaultTransientRetries     = 3

	defaultMinBytes        = 10240
	defaultSizeTolerance   = 0.05
	defaultStorageBase     = "https://lalals.s3.amazonaws.com/conversions/standard"
	defaultPlaceholderRoot = "https://lalals.s3.amazonaws.com"
	defaultDownloadTimeout = 120

	defaultSiteURL             = "https://lalals.com"
	defaultLoginTimeout        = 300
	defaultCaptureWindow       = 30
	defaultElementTimeoutMS    = 5000
	defaultPageLoadTimeoutMS   = 15000
	defaultConfirmationTimeout = 1800
	defaultPostConfirmDelay    = 5
	defaultMaxScreenshots      = 20

	defaultHistoryAPIBase    = "https://devapi.lalals.com"
	defaultRequestsPerSecond = 2
	defaultStalePageLimit    = 3
	defaultMaxLoadMore       = 30
	defaultNotifyTimeout     = 10
	defaultServeListen       = "127.0.0.1:7610"

	envAPIKey          = "MUSICGPT_API_KEY"
	envNtfyTopic       = "SONGFACTORY_NTFY_TOPIC"
	envHistoryUsername = "SONGFACTORY_USERNAME"
	envHistoryToken    = "SONGFACTORY_SESSION_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Generation: Generation{
			Transport:         defaultTransport,
			DelayBetweenItems: defaultDelayBetweenItems,
			MaxItemsPerRun:    defaultMaxItemsPerRun,
		},
		API: API{
			BaseURL:           defaultAPIBaseURL,
			RequestTimeout:    defaultAPIRequestTimeout,
			PollInterval:      defaultAPIPollInterval,
			GenerationTimeout: defaultAPIGenerationTimeout,
			RateLimitRetries:  defaultRateLimitRetries,
			TransientRetries:  defaultTransientRetries,
			VerifyRemoteSize:  true,
		},
		Artifacts: Artifacts{
			MinBytes:         defaultMinBytes,
			SizeTolerance:    defaultSizeTolerance,
			StorageBase:      defaultStorageBase,
			PlaceholderRoots: []string{defaultPlaceholderRoot},
			DownloadTimeout:  defaultDownloadTimeout,
		},
		Browser: Browser{
			SiteURL:             defaultSiteURL,
			LoginTimeout:        defaultLoginTimeout,
			CaptureWindow:       defaultCaptureWindow,
			ElementTimeoutMS:    defaultElementTimeoutMS,
			PageLoadTimeoutMS:   defaultPageLoadTimeoutMS,
			ConfirmationTimeout: defaultConfirmationTimeout,
			PostConfirmDelay:    defaultPostConfirmDelay,
			MaxScreenshots:      defaultMaxScreenshots,
		},
		History: History{
			APIBase:           defaultHistoryAPIBase,
			RequestsPerSecond: defaultRequestsPerSecond,
			StalePageLimit:    defaultStalePageLimit,
			MaxLoadMore:       defaultMaxLoadMore,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Serve: Serve{
			Listen: defaultServeListen,
		},
	}
}
