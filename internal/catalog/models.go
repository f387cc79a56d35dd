package catalog

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a catalog record.
type Status string

const (
	StatusQueued               Status = "queued"
	StatusProcessing           Status = "processing"
	StatusSubmitted            Status = "submitted"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusPolling              Status = "polling"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
	StatusImported             Status = "imported"
)

// InterruptedNote is written to records that were left in flight by a run
// that ended without reaching a terminal state.
const InterruptedNote = "interrupted: run ended before the job reached a terminal state"

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusSubmitted,
	StatusAwaitingConfirmation,
	StatusPolling,
	StatusCompleted,
	StatusError,
	StatusImported,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var inFlightStatuses = []Status{
	StatusProcessing,
	StatusSubmitted,
	StatusAwaitingConfirmation,
	StatusPolling,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a Status, reporting false when unknown.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[normalized]; !ok {
		return "", false
	}
	return normalized, true
}

// IsTerminal reports whether the status ends the generation lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusImported:
		return true
	default:
		return false
	}
}

// Record is one song in the catalog.
type Record struct {
	ID                int64
	Title             string
	GenreLabel        string
	Prompt            string
	Lyrics            string
	Status            Status
	TaskID            string
	ConversionID1     string
	ConversionID2     string
	AudioURL1         string
	AudioURL2         string
	FilePath1         string
	FilePath2         string
	FileSize1         int64
	FileSize2         int64
	FileFormat        string
	MusicStyle        string
	VoiceUsed         string
	DurationSeconds   float64
	ServiceCreatedAt  string
	LyricsTimestamped string
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ConversionIDs returns both rendition conversion ids.
func (r *Record) ConversionIDs() [2]string {
	return [2]string{r.ConversionID1, r.ConversionID2}
}

// HasPrimaryFile reports whether rendition 1 has been stored.
func (r *Record) HasPrimaryFile() bool {
	return strings.TrimSpace(r.FilePath1) != ""
}

// Generation carries the service-derived fields a runner writes back. Empty
// strings and zero sizes leave the stored value untouched.
type Generation struct {
	TaskID            string
	ConversionIDs     [2]string
	AudioURLs         [2]string
	FilePaths         [2]string
	FileSizes         [2]int64
	FileFormat        string
	MusicStyle        string
	VoiceUsed         string
	DurationSeconds   float64
	ServiceCreatedAt  string
	LyricsTimestamped string
}

// NewRecordParams describes a user-created catalog record.
type NewRecordParams struct {
	Title      string `validate:"required,max=200"`
	GenreLabel string `validate:"max=100"`
	Prompt     string `validate:"required_without=Lyrics,max=500"`
	Lyrics     string `validate:"max=3000"`
}

// ImportedRecord holds the user-facing fields of a record created from the
// service history.
type ImportedRecord struct {
	Title  string `validate:"required"`
	Prompt string
	Lyrics string
}
