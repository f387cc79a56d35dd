package metadata

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultStorageBase is the root of the storage URL convention.
const DefaultStorageBase = "https://lalals.s3.amazonaws.com/conversions/standard"

// DefaultPlaceholderRoot is the bucket root the service returns before a file exists.
const DefaultPlaceholderRoot = "https://lalals.s3.amazonaws.com"

var (
	nestedKeys = []string{"conversion", "data"}

	numberedURL1Keys = []string{"conversion_path_1", "audio_url_1"}
	genericURL1Keys  = []string{"audio_url", "conversion_path", "conversionPath", "track_url", "download_url", "url"}
	numberedURL2Keys = []string{"conversion_path_2", "audio_url_2"}
	genericURL2Keys  = []string{"conversion_path_wav", "download_url_2"}

	jobIDKeys      = []string{"task_id", "taskId", "id"}
	cid1Keys       = []string{"conversion_id_1", "conversion_id"}
	cid2Keys       = []string{"conversion_id_2"}
	statusKeys     = []string{"status", "conversion_status"}
	errorKeys      = []string{"error_message", "errorMessage", "error", "message"}
	styleKeys      = []string{"music_style", "musicStyle", "style"}
	voiceKeys      = []string{"voice", "voice_name", "voiceName"}
	durationKeys   = []string{"duration", "duration_seconds", "conversion_duration", "conversion_duration_1"}
	formatKeys     = []string{"format", "file_format"}
	createdKeys    = []string{"created_at", "createdAt"}
	lyricsTimeKeys = []string{"lyrics_timestamped", "timestampedLyrics"}

	legacyListKeys = []string{"conversions", "results"}
	legacyIDKeys   = []string{"conversion_id", "conversionId", "id"}
	legacyURLKeys  = []string{"conversion_path", "audio_url", "url"}
	legacySizeKeys = []string{"file_size", "fileSize"}
)

// SecondaryKey holds the document fetched by the second conversion id when a
// caller attaches it to the primary document.
const SecondaryKey = "secondary"

// Normalizer turns raw service documents into Resolved values.
type Normalizer struct {
	storageBase  string
	placeholders map[string]struct{}
}

// NewNormalizer builds a Normalizer. Empty arguments fall back to the
// defaults.
func NewNormalizer(storageBase string, placeholderRoots []string) *Normalizer {
	storageBase = strings.TrimRight(strings.TrimSpace(storageBase), "/")
	if storageBase == "" {
		storageBase = DefaultStorageBase
	}
	if len(placeholderRoots) == 0 {
		placeholderRoots = []string{DefaultPlaceholderRoot}
	}
	placeholders := make(map[string]struct{}, len(placeholderRoots))
	for _, root := range placeholderRoots {
		root = strings.TrimRight(strings.TrimSpace(root), "/")
		if root != "" {
			placeholders[root] = struct{}{}
		}
	}
	return &Normalizer{storageBase: storageBase, placeholders: placeholders}
}

// StorageURL builds the conventional storage URL for a conversion or job id.
func (n *Normalizer) StorageURL(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	candidate := n.storageBase + "/" + id + "/" + id + ".mp3"
	if n.IsPlaceholder(candidate) {
		return ""
	}
	return candidate
}

// IsPlaceholder reports whether url is empty or a placeholder bucket root.
func (n *Normalizer) IsPlaceholder(url string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	if trimmed == "" {
		return true
	}
	_, ok := n.placeholders[trimmed]
	return ok
}

func (n *Normalizer) usable(url string) string {
	if n.IsPlaceholder(url) {
		return ""
	}
	return strings.TrimSpace(url)
}

// Resolve normalizes raw.
func (n *Normalizer) Resolve(raw map[string]any) Resolved {
	if raw == nil {
		return Resolved{Format: "mp3"}
	}
	data := unwrap(raw)

	var res Resolved
	res.JobID = firstString(data, jobIDKeys...)
	res.ConversionIDs[0] = firstString(data, cid1Keys...)
	res.ConversionIDs[1] = firstString(data, cid2Keys...)

	res.Status = StatusOf(raw)
	if IsFailedStatus(res.Status) {
		res.ErrorMessage = firstString(data, errorKeys...)
	}

	n.assign(&res, 0, firstUsable(n, data, numberedURL1Keys), SourceNumbered)
	n.assign(&res, 1, firstUsable(n, data, numberedURL2Keys), SourceNumbered)
	n.assign(&res, 0, firstUsable(n, data, genericURL1Keys), SourceGeneric)
	n.assign(&res, 1, firstUsable(n, data, genericURL2Keys), SourceGeneric)

	n.applyLegacyList(&res, data)
	if secondary, ok := raw[SecondaryKey].(map[string]any); ok {
		res = n.MergeSecondary(res, secondary)
	}

	for i := range res.URLs {
		n.assign(&res, i, n.StorageURL(res.ConversionIDs[i]), SourceConversionID)
	}
	n.assign(&res, 0, n.StorageURL(res.JobID), SourceJobID)

	res.MusicStyle = firstString(data, styleKeys...)
	res.Voice = firstString(data, voiceKeys...)
	res.DurationSeconds = firstFloat(data, durationKeys...)
	res.Format = strings.ToLower(firstString(data, formatKeys...))
	if res.Format == "" {
		res.Format = "mp3"
	}
	res.CreatedAt = firstString(data, createdKeys...)
	res.LyricsTimestamped = lyricsTiming(data)
	return res
}

// WithFallbackIDs fills missing ids from values captured at submission and
// rebuilds any URL still missing from them.
func (n *Normalizer) WithFallbackIDs(res Resolved, jobID string, conversionIDs [2]string) Resolved {
	if res.JobID == "" {
		res.JobID = strings.TrimSpace(jobID)
	}
	for i := range res.ConversionIDs {
		if res.ConversionIDs[i] == "" {
			res.ConversionIDs[i] = strings.TrimSpace(conversionIDs[i])
		}
		n.assign(&res, i, n.StorageURL(res.ConversionIDs[i]), SourceConversionID)
	}
	n.assign(&res, 0, n.StorageURL(res.JobID), SourceJobID)
	return res
}

// MergeSecondary fills rendition 2 from a document fetched by the second
// conversion id, where the service reports that rendition as its first.
func (n *Normalizer) MergeSecondary(res Resolved, secondary map[string]any) Resolved {
	if secondary == nil {
		return res
	}
	other := n.Resolve(secondary)
	if res.ConversionIDs[1] == "" {
		res.ConversionIDs[1] = other.ConversionIDs[0]
	}
	switch other.URLSources[0] {
	case SourceNumbered, SourceGeneric, SourceLegacyList:
		n.assign(&res, 1, other.URLs[0], other.URLSources[0])
	}
	if res.Sizes[1] == 0 {
		res.Sizes[1] = other.Sizes[0]
	}
	n.assign(&res, 1, n.StorageURL(res.ConversionIDs[1]), SourceConversionID)
	return res
}

// StatusOf reads the service status of raw, uppercased.
func StatusOf(raw map[string]any) string {
	if raw == nil {
		return ""
	}
	if status := firstString(unwrap(raw), statusKeys...); status != "" {
		return strings.ToUpper(status)
	}
	return strings.ToUpper(firstString(raw, statusKeys...))
}

func (n *Normalizer) assign(res *Resolved, idx int, url string, source Source) {
	if res.URLs[idx] != "" || url == "" {
		return
	}
	res.URLs[idx] = url
	res.URLSources[idx] = source
}

func (n *Normalizer) applyLegacyList(res *Resolved, data map[string]any) {
	var list []any
	for _, key := range legacyListKeys {
		if items, ok := data[key].([]any); ok && len(items) > 0 {
			list = items
			break
		}
	}
	for i := 0; i < len(list) && i < 2; i++ {
		switch entry := list[i].(type) {
		case map[string]any:
			if res.ConversionIDs[i] == "" {
				res.ConversionIDs[i] = firstString(entry, legacyIDKeys...)
			}
			n.assign(res, i, firstUsable(n, entry, legacyURLKeys), SourceLegacyList)
			if res.Sizes[i] == 0 {
				res.Sizes[i] = int64(firstFloat(entry, legacySizeKeys...))
			}
		case string:
			n.assign(res, i, n.usable(entry), SourceLegacyList)
		}
	}
}

func unwrap(raw map[string]any) map[string]any {
	for _, key := range nestedKeys {
		if nested, ok := raw[key].(map[string]any); ok {
			return nested
		}
	}
	return raw
}

func firstUsable(n *Normalizer, data map[string]any, keys []string) string {
	for _, key := range keys {
		if url := n.usable(stringValue(data[key])); url != "" {
			return url
		}
	}
	return ""
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := stringValue(data[key]); value != "" {
			return value
		}
	}
	return ""
}

func firstFloat(data map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch value := data[key].(type) {
		case float64:
			if value > 0 {
				return value
			}
		case int:
			if value > 0 {
				return float64(value)
			}
		case int64:
			if value > 0 {
				return float64(value)
			}
		case json.Number:
			if f, err := value.Float64(); err == nil && f > 0 {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && f > 0 {
				return f
			}
		}
	}
	return 0
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func lyricsTiming(data map[string]any) string {
	for _, key := range lyricsTimeKeys {
		value, ok := data[key]
		if !ok || value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		encoded, err := json.Marshal(value)
		if err == nil && len(encoded) > 0 && string(encoded) != "null" {
			return string(encoded)
		}
	}
	return ""
}
