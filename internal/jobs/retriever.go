package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"songfactory/internal/artifact"
	"songfactory/internal/catalog"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
)

// MenuFunc downloads a rendition through the site UI. A nil MenuFunc skips
// that last resort.
type MenuFunc func(ctx context.Context, rendition int) (artifact.BrowserDownload, error)

// Song names the files a retrieval writes.
type Song struct {
	Title string
	// DatePrefix dates the song folder (YYYY-MM-DD). Empty means today.
	DatePrefix string
}

func (s Song) request(rendition int, expected int64) artifact.Request {
	return artifact.Request{Title: s.Title, Rendition: rendition, DatePrefix: s.DatePrefix, ExpectedSize: expected}
}

// Outcome is the result of resolving and downloading one generation.
type Outcome struct {
	Resolved metadata.Resolved
	Files    [2]artifact.Result
	// Err explains why rendition 1 is missing. It is nil when rendition 1 is
	// stored.
	Err      error
	Problems []string
}

// Complete reports whether rendition 1 is on disk.
func (o Outcome) Complete() bool {
	return o.Files[0].Path != ""
}

// Paths lists the stored files.
func (o Outcome) Paths() []string {
	var paths []string
	for _, file := range o.Files {
		if file.Path != "" {
			paths = append(paths, file.Path)
		}
	}
	return paths
}

// Note summarizes problems for the catalog. An incomplete outcome leads with
// the typed rendition 1 error.
func (o Outcome) Note() string {
	parts := make([]string, 0, len(o.Problems)+1)
	if o.Err != nil {
		parts = append(parts, services.Note(o.Err))
	}
	parts = append(parts, o.Problems...)
	return strings.Join(parts, "; ")
}

// Generation builds the catalog update for this outcome.
func (o Outcome) Generation() catalog.Generation {
	res := o.Resolved
	gen := catalog.Generation{
		TaskID:            res.JobID,
		ConversionIDs:     res.ConversionIDs,
		AudioURLs:         res.URLs,
		FileFormat:        res.Format,
		MusicStyle:        res.MusicStyle,
		VoiceUsed:         res.Voice,
		DurationSeconds:   res.DurationSeconds,
		ServiceCreatedAt:  res.CreatedAt,
		LyricsTimestamped: res.LyricsTimestamped,
	}
	for i, file := range o.Files {
		if file.Path == "" {
			continue
		}
		gen.FilePaths[i] = file.Path
		gen.FileSizes[i] = file.Size
		if file.URL != "" {
			gen.AudioURLs[i] = file.URL
		}
		if i == 0 && file.Format != "" {
			gen.FileFormat = file.Format
		}
	}
	return gen
}

// Retriever resolves service documents into stored renditions.
type Retriever struct {
	artifacts    *artifact.Store
	normalizer   *metadata.Normalizer
	verifyRemote bool
	dryRun       bool
	logger       *slog.Logger
}

// RetrieverOptions configures a Retriever.
type RetrieverOptions struct {
	VerifyRemoteSize bool
	DryRun           bool
}

// NewRetriever builds a Retriever.
func NewRetriever(artifacts *artifact.Store, normalizer *metadata.Normalizer, opts RetrieverOptions, logger *slog.Logger) *Retriever {
	return &Retriever{
		artifacts:    artifacts,
		normalizer:   normalizer,
		verifyRemote: opts.VerifyRemoteSize,
		dryRun:       opts.DryRun,
		logger:       logging.NewComponentLogger(logger, "retriever"),
	}
}

// Normalizer exposes the metadata normalizer.
func (r *Retriever) Normalizer() *metadata.Normalizer {
	return r.normalizer
}

// Resolve normalizes raw and fills ids the document lacks from the ones
// captured at submission.
func (r *Retriever) Resolve(raw map[string]any, jobID string, conversionIDs [2]string) metadata.Resolved {
	return r.normalizer.WithFallbackIDs(r.normalizer.Resolve(raw), jobID, conversionIDs)
}

// Retrieve downloads every rendition of res. Rendition 1 without a URL is
// reconstructed once from the fallback conversion id; after that the menu
// download is the last resort for any rendition still missing.
func (r *Retriever) Retrieve(ctx context.Context, song Song, res metadata.Resolved, fallback [2]string, menu MenuFunc) Outcome {
	logger := logging.WithContext(ctx, r.logger)
	out := Outcome{Resolved: res}

	if r.dryRun {
		placeholder, err := r.artifacts.Placeholder(song.request(1, 0))
		if err != nil {
			out.Err = err
			return out
		}
		out.Files[0] = placeholder
		return out
	}

	if out.Resolved.URLs[0] == "" {
		if url := r.normalizer.StorageURL(fallback[0]); url != "" {
			out.Resolved.URLs[0] = url
			out.Resolved.URLSources[0] = metadata.SourceConversionID
			logger.Info("reconstructed rendition 1 URL from captured conversion id",
				logging.String("url", url),
			)
		}
	}

	var errs [2]error
	for i := range out.Files {
		rendition := i + 1
		url := out.Resolved.URLs[i]
		if url == "" {
			errs[i] = services.Wrap(services.ErrNoArtifactResolved, "jobs", "download",
				fmt.Sprintf("no URL for rendition %d", rendition), nil)
			continue
		}
		req := song.request(rendition, out.Resolved.Sizes[i])
		if r.verifyRemote {
			if size, ok := r.artifacts.RemoteSize(ctx, url); ok {
				req.ExpectedSize = size
			}
		}
		result, err := r.artifacts.Fetch(ctx, url, req)
		if err != nil {
			errs[i] = err
			logging.WarnWithContext(logger, "rendition download failed", "rendition_download_failed",
				logging.Int("rendition", rendition),
				logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the URL may not be published yet; retry later"),
				logging.String(logging.FieldImpact, "falling back to the next source"),
			)
			continue
		}
		out.Files[i] = result
	}

	if menu != nil {
		for i := range out.Files {
			if out.Files[i].Path != "" || ctx.Err() != nil {
				continue
			}
			rendition := i + 1
			result, err := r.fromMenu(ctx, song, rendition, menu)
			if errors.Is(err, ErrUnsupported) {
				break
			}
			if err != nil {
				errs[i] = errors.Join(errs[i], err)
				continue
			}
			errs[i] = nil
			out.Files[i] = result
		}
	}

	if errs[1] != nil && out.Files[1].Path == "" {
		out.Problems = append(out.Problems, "rendition 2: "+services.Note(errs[1]))
	}
	if !out.Complete() {
		out.Err = errs[0]
		if out.Err == nil {
			out.Err = services.Wrap(services.ErrNoArtifactResolved, "jobs", "download", "rendition 1 not stored", nil)
		}
	}
	return out
}

func (r *Retriever) fromMenu(ctx context.Context, song Song, rendition int, menu MenuFunc) (artifact.Result, error) {
	dl, err := menu(ctx, rendition)
	if err != nil {
		return artifact.Result{}, err
	}
	result, err := r.artifacts.FetchFromBrowserDownload(ctx, dl, song.request(rendition, 0))
	if err != nil {
		return artifact.Result{}, err
	}
	logging.WithContext(ctx, r.logger).Info("rendition stored from menu download",
		logging.Int("rendition", rendition),
		logging.String("path", result.Path),
	)
	return result, nil
}
