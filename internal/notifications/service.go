package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"songfactory/internal/config"
)

const userAgent = "SongFactory-Go/0.1.0"

// Event names a notification.
type Event string

const (
	EventSongCompleted        Event = "song_completed"
	EventSongFailed           Event = "song_failed"
	EventAwaitingConfirmation Event = "awaiting_confirmation"
	EventRunFinished          Event = "run_finished"
	EventTest                 Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service defines the notification surface.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, fields Payload) error {
	data, ok := format(event, fields)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

// format renders an event. Events without a message are suppressed.
func format(event Event, fields Payload) (payload, bool) {
	title := fields.text("title")
	switch event {
	case EventSongCompleted:
		message := fmt.Sprintf("🎵 Song ready: %s", title)
		if files := fields.strings("paths"); len(files) > 0 {
			message += "\nFiles: " + strings.Join(files, ", ")
		}
		return payload{
			title:   "SongFactory - Song Ready",
			message: message,
			tags:    []string{"songfactory", "song", "completed"},
		}, true
	case EventSongFailed:
		message := fmt.Sprintf("❌ Song failed: %s", title)
		if note := fields.text("error"); note != "" {
			message += ": " + note
		}
		return payload{
			title:    "SongFactory - Song Failed",
			message:  message,
			tags:     []string{"songfactory", "song", "error"},
			priority: "high",
		}, true
	case EventAwaitingConfirmation:
		return payload{
			title:    "SongFactory - Confirmation Needed",
			message:  fmt.Sprintf("⏳ Waiting for confirmation: %s", title),
			tags:     []string{"songfactory", "browser", "confirm"},
			priority: "high",
		}, true
	case EventRunFinished:
		processed := fields.number("processed")
		if processed == 0 {
			return payload{}, false
		}
		failed := fields.number("failed")
		label := fields.text("label")
		if label == "" {
			label = "Queue run"
		}
		heading := "SongFactory - Run Complete"
		message := fmt.Sprintf("%s complete: %d songs processed", label, processed)
		if failed > 0 {
			heading = "SongFactory - Run Complete (with errors)"
			message = fmt.Sprintf("%s complete: %d succeeded, %d failed", label, processed-failed, failed)
		}
		return payload{
			title:   heading,
			message: message,
			tags:    []string{"songfactory", "run", "completed"},
		}, true
	case EventTest:
		return payload{
			title:    "SongFactory - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"songfactory", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) strings(key string) []string {
	values, _ := p[key].([]string)
	return values
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
