package history_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songfactory/internal/history"
	"songfactory/internal/logging"
	"songfactory/internal/services"
	"songfactory/internal/testsupport"
)

const audioSize = 20000

// fakeFeed serves the user endpoint, a paged project feed and audio files.
type fakeFeed struct {
	server   *httptest.Server
	pages    map[int][]map[string]any
	token    string
	requests atomic.Int32
}

func newFakeFeed(t *testing.T, pages map[int][]map[string]any) *fakeFeed {
	t.Helper()
	feed := &fakeFeed{pages: pages, token: "session-token"}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/user", func(w http.ResponseWriter, r *http.Request) {
		if !feed.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"data": map[string]any{"user": map[string]any{"id": 42}}})
	})
	mux.HandleFunc("GET /user/42/infinite-projects", func(w http.ResponseWriter, r *http.Request) {
		feed.requests.Add(1)
		if !feed.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		writeJSON(w, map[string]any{"data": feed.pages[offset]})
	})
	mux.HandleFunc("/files/", serveAudio)
	mux.HandleFunc("/conversions/", serveAudio)
	feed.server = httptest.NewServer(mux)
	t.Cleanup(feed.server.Close)
	return feed
}

func (f *fakeFeed) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+f.token
}

func serveAudio(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "missing") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(audioSize))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(testsupport.AudioBytes(audioSize))
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func project(base, id, name string) map[string]any {
	return map[string]any{
		"id":                id,
		"track_name":        name,
		"track_url":         base + "/files/" + id + ".mp3",
		"conversion_status": "COMPLETED",
		"music_style":       "lofi",
		"createdAt":         "2026-03-01T10:00:00Z",
		"queue_task": map[string]any{
			"input_payload": map[string]any{
				"prompt":          "prompt for " + name,
				"lyrics":          "lyrics for " + name,
				"conversion_id_1": id + "-a",
				"conversion_id_2": id + "-b",
			},
		},
	}
}

// fullPage returns FeedPageSize projects named P<start>..
func fullPage(base string, start int) []map[string]any {
	page := make([]map[string]any, 0, history.FeedPageSize)
	for i := start; i < start+history.FeedPageSize; i++ {
		page = append(page, project(base, fmt.Sprintf("P%d", i), fmt.Sprintf("Song %d", i)))
	}
	return page
}

func TestFeedDiscoverPagesUntilShortPage(t *testing.T) {
	feed := newFakeFeed(t, nil)
	base := feed.server.URL
	feed.pages = map[int][]map[string]any{
		0:  fullPage(base, 0),
		10: {project(base, "P9", "Song 9"), project(base, "P10", "Song 10")},
	}
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryBase(base))
	cfg.History.SessionToken = feed.token

	source := history.NewFeedSource(cfg, logging.NewNop())
	seen := map[string]bool{}
	var ids []string
	err := source.Discover(context.Background(), nil, func(item history.Item) bool {
		ids = append(ids, item.JobID)
		if seen[item.JobID] {
			return false
		}
		seen[item.JobID] = true
		return true
	})
	require.NoError(t, err)
	assert.Len(t, ids, 12)
	assert.Equal(t, "P10", ids[11])
	assert.EqualValues(t, 2, feed.requests.Load())
}

func TestFeedDiscoverStopsAfterStalePages(t *testing.T) {
	feed := newFakeFeed(t, nil)
	base := feed.server.URL
	page := fullPage(base, 0)
	feed.pages = map[int][]map[string]any{0: page, 10: page, 20: page, 30: page, 40: page}
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryBase(base))
	cfg.History.SessionToken = feed.token
	cfg.History.StalePageLimit = 2

	seen := map[string]bool{}
	err := history.NewFeedSource(cfg, logging.NewNop()).Discover(context.Background(), nil, func(item history.Item) bool {
		if seen[item.JobID] {
			return false
		}
		seen[item.JobID] = true
		return true
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, feed.requests.Load(), "one fresh page then two stale ones")
}

func TestFeedRequiresSession(t *testing.T) {
	feed := newFakeFeed(t, map[int][]map[string]any{})
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryBase(feed.server.URL))

	err := history.NewFeedSource(cfg, logging.NewNop()).Discover(context.Background(), nil, func(history.Item) bool { return true })
	require.Error(t, err)
	assert.Equal(t, services.KindCredentialInvalid, services.KindOf(err))
}

func TestFeedDiscoverHonorsStop(t *testing.T) {
	feed := newFakeFeed(t, nil)
	feed.pages = map[int][]map[string]any{0: fullPage(feed.server.URL, 0)}
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryBase(feed.server.URL))
	cfg.History.SessionToken = feed.token

	err := history.NewFeedSource(cfg, logging.NewNop()).Discover(context.Background(), func() bool { return true }, func(history.Item) bool { return true })
	assert.ErrorIs(t, err, services.ErrStopped)
	assert.Zero(t, feed.requests.Load())
}

func TestFeedRetriesTransientPageFailure(t *testing.T) {
	feed := newFakeFeed(t, nil)
	feed.pages = map[int][]map[string]any{0: {project(feed.server.URL, "P1", "Song 1")}}
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryBase(feed.server.URL))
	cfg.History.SessionToken = feed.token

	var failures atomic.Int32
	failures.Store(1)
	flaky := http.NewServeMux()
	flaky.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "infinite-projects") && failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		feed.server.Config.Handler.ServeHTTP(w, r)
	})
	front := httptest.NewServer(flaky)
	t.Cleanup(front.Close)
	cfg.History.APIBase = front.URL

	var slept []time.Duration
	retry := services.Retrier{MaxAttempts: 3, BaseDelay: time.Second, Sleeper: func(d time.Duration) { slept = append(slept, d) }}
	var items []history.Item
	err := history.NewFeedSource(cfg, logging.NewNop(), history.WithFeedRetrier(retry)).Discover(context.Background(), nil, func(item history.Item) bool {
		items = append(items, item)
		return true
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "P1", items[0].JobID)
	assert.Equal(t, []time.Duration{time.Second}, slept)
	assert.EqualValues(t, 1, feed.requests.Load())
}

func TestFeedGivesUpAfterBoundedAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryBase(srv.URL))
	cfg.History.SessionToken = "session-token"

	retry := services.Retrier{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleeper: func(time.Duration) {}}
	_, err := history.NewFeedSource(cfg, logging.NewNop(), history.WithFeedRetrier(retry)).UserID(context.Background())
	require.Error(t, err)
	assert.Equal(t, services.KindNetwork, services.KindOf(err))
	assert.EqualValues(t, 2, hits.Load())
}

func TestItemFromFeed(t *testing.T) {
	item := history.ItemFromFeed(map[string]any{
		"id":         float64(981),
		"name":       "  Night Drive ",
		"track_url":  "https://cdn.example.test/981.mp3",
		"date_added": "2026-01-02",
		"queue_task": map[string]any{
			"input_payload": map[string]any{"prompt": "dark synth", "conversion_id_1": "c1"},
		},
	})
	assert.Equal(t, "981", item.JobID)
	assert.Equal(t, "Night Drive", item.Title)
	assert.Equal(t, "dark synth", item.Prompt)
	assert.Equal(t, "2026-01-02", item.CreatedAt)
	assert.Equal(t, [2]string{"c1", ""}, item.ConversionIDs)

	doc := item.Document()
	assert.Equal(t, "981", doc["task_id"])
	assert.Equal(t, "https://cdn.example.test/981.mp3", doc["audio_url"])
	assert.NotContains(t, doc, "conversion_id_2")
}

func TestDisplayTitleFallsBackToJobID(t *testing.T) {
	assert.Equal(t, "Untitled abcdef12", history.Item{JobID: "abcdef1234567"}.DisplayTitle())
	assert.Equal(t, "Untitled", history.Item{}.DisplayTitle())
}
