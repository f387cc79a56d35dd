package history

import (
	"strings"

	"songfactory/internal/textutil"
)

// Item is one song found in the service history.
type Item struct {
	JobID         string
	Title         string
	Prompt        string
	Lyrics        string
	AudioURL      string
	ConversionIDs [2]string
	Status        string
	MusicStyle    string
	CreatedAt     string
	Raw           map[string]any
}

// DisplayTitle returns the title, or a name derived from the job id when the
// service has none.
func (it Item) DisplayTitle() string {
	if title := strings.TrimSpace(it.Title); title != "" {
		return title
	}
	if it.JobID != "" {
		return "Untitled " + textutil.TitlePrefix(it.JobID, 8)
	}
	return "Untitled"
}

// Document renders the discovered fields in the service's document shape so
// the metadata normalizer can resolve them.
func (it Item) Document() map[string]any {
	doc := map[string]any{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			doc[key] = value
		}
	}
	set("task_id", it.JobID)
	set("conversion_id_1", it.ConversionIDs[0])
	set("conversion_id_2", it.ConversionIDs[1])
	set("audio_url", it.AudioURL)
	set("status", it.Status)
	set("music_style", it.MusicStyle)
	set("created_at", it.CreatedAt)
	return doc
}

// collector keeps discovered items in arrival order, dropping repeated job
// ids. Items without a job id are always kept.
type collector struct {
	seen  map[string]struct{}
	items []Item
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

// add reports whether item was new.
func (c *collector) add(item Item) bool {
	if id := strings.TrimSpace(item.JobID); id != "" {
		if _, dup := c.seen[id]; dup {
			return false
		}
		c.seen[id] = struct{}{}
	}
	c.items = append(c.items, item)
	return true
}
