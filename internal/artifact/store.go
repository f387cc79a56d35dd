package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"songfactory/internal/config"
	"songfactory/internal/fileutil"
	"songfactory/internal/logging"
	"songfactory/internal/services"
	"songfactory/internal/textutil"
)

// DefaultSizeTolerance is the accepted relative difference between the
// expected and actual size of a download.
const DefaultSizeTolerance = 0.05

const defaultExt = ".mp3"

var audioExts = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".ogg":  {},
	".flac": {},
	".m4a":  {},
}

// Request identifies where a rendition is stored and how it is checked.
type Request struct {
	Title        string
	Rendition    int
	DatePrefix   string
	ExpectedSize int64
}

// Result describes a stored artifact.
type Result struct {
	Path   string
	Size   int64
	Format string
	URL    string
}

// BrowserDownload is a download captured by the automation driver.
type BrowserDownload interface {
	SuggestedFilename() string
	SaveTo(path string) error
}

// Store downloads and stores song renditions in the library directory.
type Store struct {
	libraryDir string
	validator  *Validator
	tolerance  float64
	client     *http.Client
	retry      services.Retrier
	now        func() time.Time
	logger     *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithHTTPClient overrides the HTTP client used for downloads and HEAD requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRetryMaxAttempts bounds how often a transient download failure is
// attempted. One disables retries.
func WithRetryMaxAttempts(attempts int) Option {
	return func(s *Store) {
		s.retry.MaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(s *Store) {
		s.retry.BaseDelay = baseDelay
		s.retry.MaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry waits are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(s *Store) {
		s.retry.Sleeper = sleeper
	}
}

// WithClock overrides the clock used for the default date prefix.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.NewComponentLogger(logger, "artifact")
	}
}

// NewStore builds a Store rooted at libraryDir.
func NewStore(libraryDir string, validator *Validator, tolerance float64, opts ...Option) *Store {
	if validator == nil {
		validator = NewValidator(DefaultMinBytes)
	}
	if tolerance <= 0 {
		tolerance = DefaultSizeTolerance
	}
	s := &Store{
		libraryDir: libraryDir,
		validator:  validator,
		tolerance:  tolerance,
		client:     &http.Client{Timeout: 2 * time.Minute},
		retry:      services.NewRetrier(),
		now:        time.Now,
		logger:     logging.NewComponentLogger(nil, "artifact"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromConfig builds a Store from application config.
func NewStoreFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Store {
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout()}),
		WithRetryMaxAttempts(cfg.API.TransientRetries + 1),
		WithLogger(logger),
	}
	return NewStore(cfg.Paths.LibraryDir, NewValidator(cfg.Artifacts.MinBytes), cfg.Artifacts.SizeTolerance, append(base, opts...)...)
}

// Validator exposes the content validator.
func (s *Store) Validator() *Validator {
	return s.validator
}

// TargetPath returns where a rendition with the given extension is stored.
func (s *Store) TargetPath(req Request, ext string) string {
	slug := textutil.Slugify(req.Title)
	prefix := strings.TrimSpace(req.DatePrefix)
	if prefix == "" {
		prefix = s.now().Format("2006-01-02")
	}
	rendition := req.Rendition
	if rendition <= 0 {
		rendition = 1
	}
	return filepath.Join(s.libraryDir, prefix+"_"+slug, fmt.Sprintf("%s_v%d%s", slug, rendition, normalizeExt(ext)))
}

var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DatePrefix renders a service creation timestamp as the YYYY-MM-DD folder
// prefix. Unix seconds and milliseconds are accepted. An unparseable value
// returns "" so the store falls back to today.
func DatePrefix(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range createdLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC().Format("2006-01-02")
		}
		return time.Unix(n, 0).UTC().Format("2006-01-02")
	}
	return ""
}

// Fetch downloads rawURL into the library and verifies it.
func (s *Store) Fetch(ctx context.Context, rawURL string, req Request) (Result, error) {
	target := s.TargetPath(req, extFromURL(rawURL))
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("downloading rendition",
		logging.Int("rendition", req.Rendition),
		logging.String("url", truncate(rawURL, 120)),
		logging.String("path", target),
	)

	err := s.retry.Do(ctx, func(attempt int) error {
		err := s.download(ctx, rawURL, target)
		if err != nil && services.IsTransient(err) {
			logging.WarnWithContext(logger, "rendition download attempt failed", "download_retry",
				logging.Int("rendition", req.Rendition),
				logging.Int("attempt", attempt),
				logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
				logging.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}

	result, err := s.verify(target, req.ExpectedSize)
	if err != nil {
		return Result{}, err
	}
	result.URL = rawURL
	logger.Info("rendition stored",
		logging.Int("rendition", req.Rendition),
		logging.Int64("size_bytes", result.Size),
		logging.String("format", result.Format),
	)
	return result, nil
}

func (s *Store) download(ctx context.Context, rawURL, target string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return services.Wrap(services.ErrService, "artifact", "download", "build request", err)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "artifact", "download", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		marker := services.ErrService
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			marker = services.ErrRateLimited
		case resp.StatusCode >= 500:
			marker = services.ErrNetwork
		}
		return services.Wrap(marker, "artifact", "download", fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	if _, err := fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
		_, copyErr := io.Copy(w, resp.Body)
		return copyErr
	}); err != nil {
		return services.Wrap(services.ErrNetwork, "artifact", "download", "write body", err)
	}
	return nil
}

// FetchFromBrowserDownload stores a download captured through the site UI.
func (s *Store) FetchFromBrowserDownload(ctx context.Context, dl BrowserDownload, req Request) (Result, error) {
	if dl == nil {
		return Result{}, services.Wrap(services.ErrNoArtifactResolved, "artifact", "browser download", "no download captured", nil)
	}
	target := s.TargetPath(req, filepath.Ext(dl.SuggestedFilename()))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Result{}, fmt.Errorf("create song dir: %w", err)
	}
	tmp := target + ".part"
	if err := dl.SaveTo(tmp); err != nil {
		_ = os.Remove(tmp)
		return Result{}, services.Wrap(services.ErrNetwork, "artifact", "browser download", "save download", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("rename browser download: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("browser download stored",
		logging.Int("rendition", req.Rendition),
		logging.String("path", target),
	)
	return s.verify(target, req.ExpectedSize)
}

// RemoteSize returns the Content-Length reported by a HEAD request.
func (s *Store) RemoteSize(ctx context.Context, rawURL string) (int64, bool) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

// Placeholder writes a silent MP3-framed file in place of a real download.
// Dry runs use it to exercise the pipeline without the service.
func (s *Store) Placeholder(req Request) (Result, error) {
	target := s.TargetPath(req, defaultExt)
	size := s.validator.MinBytes
	if size <= 0 {
		size = DefaultMinBytes
	}
	payload := make([]byte, size)
	copy(payload, []byte{0xFF, 0xFB, 0x90, 0x64})
	if err := fileutil.WriteFileAtomic(target, payload, 0o644); err != nil {
		return Result{}, fmt.Errorf("write placeholder: %w", err)
	}
	return s.verify(target, 0)
}

func (s *Store) verify(target string, expected int64) (Result, error) {
	report := s.validator.Validate(target)
	if !report.Valid {
		_ = os.Remove(target)
		return Result{}, &VerificationError{Path: target, Reasons: report.Errors, Actual: report.Size}
	}
	if expected > 0 {
		diff := math.Abs(float64(report.Size-expected)) / float64(expected)
		if diff > s.tolerance {
			_ = os.Remove(target)
			return Result{}, &VerificationError{Path: target, Expected: expected, Actual: report.Size}
		}
	}
	return Result{Path: target, Size: report.Size, Format: report.Format}, nil
}

func extFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return defaultExt
	}
	return normalizeExt(path.Ext(parsed.Path))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if _, ok := audioExts[ext]; ok {
		return ext
	}
	return defaultExt
}

func truncate(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n] + "..."
}

// IsVerificationError reports whether err carries a VerificationError.
func IsVerificationError(err error) bool {
	var verr *VerificationError
	return errors.As(err, &verr)
}
