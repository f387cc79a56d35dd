package metadata

import "strings"

// Source records how a rendition URL was obtained.
type Source string

const (
	SourceNone         Source = ""
	SourceNumbered     Source = "numbered"
	SourceGeneric      Source = "generic"
	SourceLegacyList   Source = "legacy_list"
	SourceConversionID Source = "conversion_id"
	SourceJobID        Source = "job_id"
)

// Resolved is the flat view of one service response.
type Resolved struct {
	JobID             string
	ConversionIDs     [2]string
	URLs              [2]string
	URLSources        [2]Source
	Sizes             [2]int64
	Status            string
	ErrorMessage      string
	MusicStyle        string
	Voice             string
	DurationSeconds   float64
	Format            string
	CreatedAt         string
	LyricsTimestamped string
}

// HasURL reports whether rendition n (1 or 2) has a URL.
func (r Resolved) HasURL(n int) bool {
	if n < 1 || n > 2 {
		return false
	}
	return r.URLs[n-1] != ""
}

// IsCompleted reports whether the service status marks the job done.
func (r Resolved) IsCompleted() bool {
	return IsCompletedStatus(r.Status)
}

// IsFailed reports whether the service status marks the job failed.
func (r Resolved) IsFailed() bool {
	return IsFailedStatus(r.Status)
}

// IsCompletedStatus compares a raw status case-insensitively.
func IsCompletedStatus(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "COMPLETED")
}

// IsFailedStatus reports ERROR or FAILED case-insensitively.
func IsFailedStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ERROR", "FAILED":
		return true
	default:
		return false
	}
}
