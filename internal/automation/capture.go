package automation

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// Capture is what Submit learned from the site's own API traffic.
type Capture struct {
	JobID         string
	ConversionIDs [2]string
	ETA           string
	AuthToken     string
	Raw           map[string]any
}

const captureSearchDepth = 3

var (
	captureIDKeys     = []string{"task_id", "taskId", "id", "conversionId", "conversion_id", "taskID"}
	captureNestedKeys = []string{"data", "conversion", "result", "response", "payload", "body", "item"}
	staticExts        = map[string]struct{}{
		".js": {}, ".css": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {},
		".woff": {}, ".woff2": {}, ".ttf": {}, ".ico": {}, ".webp": {}, ".avif": {},
	}
)

// isAPIURL matches the hosts and paths the site routes API calls through.
func isAPIURL(raw string) bool {
	return strings.Contains(raw, "musicgpt.com") ||
		strings.Contains(raw, "devapi.lalals.com") ||
		strings.Contains(raw, "lalals.com/_next/data") ||
		strings.Contains(raw, "/api/")
}

func isStaticAsset(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := staticExts[strings.ToLower(path.Ext(parsed.Path))]
	return ok
}

// findJobPayload searches obj for the map that carries a job id: a string
// longer than 10 characters under one of the id keys, at most three levels
// down the usual envelope keys. Lists are searched through their first three
// entries.
func findJobPayload(obj map[string]any, depth int) map[string]any {
	if obj == nil || depth > captureSearchDepth {
		return nil
	}
	for _, key := range captureIDKeys {
		if value, ok := obj[key].(string); ok && len(value) > 10 {
			return obj
		}
	}
	for _, key := range captureNestedKeys {
		switch nested := obj[key].(type) {
		case map[string]any:
			if found := findJobPayload(nested, depth+1); found != nil {
				return found
			}
		case []any:
			for i := 0; i < len(nested) && i < 3; i++ {
				if item, ok := nested[i].(map[string]any); ok {
					if found := findJobPayload(item, depth+1); found != nil {
						return found
					}
				}
			}
		}
	}
	return nil
}

// captureFromBody extracts job identifiers from a JSON response body.
func captureFromBody(body map[string]any) (Capture, bool) {
	src := findJobPayload(body, 0)
	if src == nil {
		return Capture{}, false
	}
	jobID := stringField(src, "task_id", "taskId", "id", "conversionId", "conversion_id", "taskID")
	if jobID == "" {
		return Capture{}, false
	}
	return Capture{
		JobID: jobID,
		ConversionIDs: [2]string{
			stringField(src, "conversion_id_1", "conversionId1"),
			stringField(src, "conversion_id_2", "conversionId2"),
		},
		ETA: stringField(src, "eta"),
		Raw: body,
	}, true
}

func authorizationHeader(headers network.Headers) string {
	for key, value := range headers {
		if strings.EqualFold(key, "authorization") {
			if text, ok := value.(string); ok {
				return strings.TrimSpace(text)
			}
		}
	}
	return ""
}

func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		switch value := data[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		case json.Number:
			return value.String()
		}
	}
	return ""
}

// captureState collects auth and job data while a submission is armed.
type captureState struct {
	mu      sync.Mutex
	armed   bool
	pending map[network.RequestID]string
	result  Capture
}

func (c *captureState) arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	c.pending = map[network.RequestID]string{}
	c.result = Capture{}
}

func (c *captureState) disarm() Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
	c.pending = nil
	return c.result
}

func (c *captureState) snapshot() Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *captureState) observeRequest(ev *network.EventRequestWillBeSent) {
	if ev.Request == nil || !isAPIURL(ev.Request.URL) {
		return
	}
	token := authorizationHeader(ev.Request.Headers)
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed && c.result.AuthToken == "" {
		c.result.AuthToken = token
	}
}

// observeResponse remembers JSON responses whose bodies should be read once
// loading finishes.
func (c *captureState) observeResponse(ev *network.EventResponseReceived) {
	if ev.Response == nil || isStaticAsset(ev.Response.URL) {
		return
	}
	mime := strings.ToLower(ev.Response.MimeType)
	if !strings.Contains(mime, "json") && !strings.Contains(mime, "text") {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed && c.result.JobID == "" {
		c.pending[ev.RequestID] = ev.Response.URL
	}
}

// takePending reports whether a finished request was one we wanted.
func (c *captureState) takePending(id network.RequestID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return false
	}
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

// observeBody applies a response body; the first body with a job id wins.
func (c *captureState) observeBody(body []byte) bool {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	found, ok := captureFromBody(payload)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed || c.result.JobID != "" {
		return false
	}
	token := c.result.AuthToken
	c.result = found
	c.result.AuthToken = token
	return true
}
