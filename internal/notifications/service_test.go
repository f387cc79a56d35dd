package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"songfactory/internal/config"
	"songfactory/internal/jobs"
	"songfactory/internal/logging"
	"songfactory/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSongCompleted, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "song completed",
			event:         notifications.EventSongCompleted,
			payload:       notifications.Payload{"title": "Night Drive", "paths": []string{"a_v1.mp3", "a_v2.mp3"}},
			expectTitle:   "SongFactory - Song Ready",
			expectMessage: "🎵 Song ready: Night Drive\nFiles: a_v1.mp3, a_v2.mp3",
			expectTags:    "songfactory,song,completed",
		},
		{
			name:           "song failed",
			event:          notifications.EventSongFailed,
			payload:        notifications.Payload{"title": "Night Drive", "error": "credential_invalid: HTTP 401"},
			expectTitle:    "SongFactory - Song Failed",
			expectMessage:  "❌ Song failed: Night Drive: credential_invalid: HTTP 401",
			expectTags:     "songfactory,song,error",
			expectPriority: "high",
		},
		{
			name:           "awaiting confirmation",
			event:          notifications.EventAwaitingConfirmation,
			payload:        notifications.Payload{"title": "Night Drive"},
			expectTitle:    "SongFactory - Confirmation Needed",
			expectMessage:  "⏳ Waiting for confirmation: Night Drive",
			expectTags:     "songfactory,browser,confirm",
			expectPriority: "high",
		},
		{
			name:          "run finished with errors",
			event:         notifications.EventRunFinished,
			payload:       notifications.Payload{"processed": 5, "failed": 2},
			expectTitle:   "SongFactory - Run Complete (with errors)",
			expectMessage: "Queue run complete: 3 succeeded, 2 failed",
			expectTags:    "songfactory,run,completed",
		},
		{
			name:          "history import finished",
			event:         notifications.EventRunFinished,
			payload:       notifications.Payload{"processed": 4, "label": "History import"},
			expectTitle:   "SongFactory - Run Complete",
			expectMessage: "History import complete: 4 songs processed",
			expectTags:    "songfactory,run,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, seen := newNtfyServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			got := seen()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got[0].title)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got[0].body)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got[0].tags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got[0].priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.Publish(context.Background(), notifications.EventRunFinished, notifications.Payload{"processed": 0}); err != nil {
		t.Fatalf("expected no error for empty run, got %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.Event("unknown"), nil); err != nil {
		t.Fatalf("expected no error for unknown event, got %v", err)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	if err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestSinkForwardsRunEvents(t *testing.T) {
	server, seen := newNtfyServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	sink := notifications.Sink(notifications.NewService(&cfg), "Queue run", logging.NewNop())
	sink(jobs.Event{Type: jobs.EventJobStarted, Title: "ignored"})
	sink(jobs.Event{Type: jobs.EventJobCompleted, Title: "imported without files"})
	sink(jobs.Event{Type: jobs.EventJobCompleted, Title: "Night Drive", Paths: []string{"night-drive_v1.mp3"}})
	sink(jobs.Event{Type: jobs.EventJobFailed, Title: "Broken", Message: "service_error: generation failed"})
	sink(jobs.Event{Type: jobs.EventRunFinished, Processed: 2, Failed: 1})

	got := seen()
	if len(got) != 3 {
		t.Fatalf("expected 3 notifications, got %d: %+v", len(got), got)
	}
	if got[0].title != "SongFactory - Song Ready" || got[1].title != "SongFactory - Song Failed" {
		t.Fatalf("unexpected titles: %q, %q", got[0].title, got[1].title)
	}
	if got[2].body != "Queue run complete: 1 succeeded, 1 failed" {
		t.Fatalf("unexpected run summary %q", got[2].body)
	}
}
