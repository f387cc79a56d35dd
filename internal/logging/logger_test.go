package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"songfactory/internal/config"
	"songfactory/internal/logging"
	"songfactory/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test", logging.String("key", "value"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "songfactory.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerLiftsSubjectFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "jobs").Info("submitted",
		logging.Int64(logging.FieldRecordID, 7),
		logging.String(logging.FieldJobID, "J1"),
		logging.String("eta", "90s"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "[jobs] Song #7 (J1) - submitted") {
		t.Fatalf("expected header with component and subject, got %q", text)
	}
	if !strings.Contains(text, "eta: 90s") {
		t.Fatalf("expected body field, got %q", text)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRecordID(ctx, 123)
	ctx = services.WithJobID(ctx, "job-xyz")
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithTransport(ctx, "api")

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, base).Info("contextual log")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry[logging.FieldRecordID] != float64(123) {
		t.Fatalf("record_id = %v, want 123", entry[logging.FieldRecordID])
	}
	if entry[logging.FieldJobID] != "job-xyz" {
		t.Fatalf("job_id = %v", entry[logging.FieldJobID])
	}
	if entry[logging.FieldRunID] != "run-1" {
		t.Fatalf("run_id = %v", entry[logging.FieldRunID])
	}
	if entry[logging.FieldTransport] != "api" {
		t.Fatalf("transport = %v", entry[logging.FieldTransport])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "size check skipped", "remote_size_unavailable")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected %s in warning, got %v", key, entry)
		}
	}
}

func TestErrorWithContextKeepsExplicitHint(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.ErrorWithContext(logger, "song failed", "job_failed",
		logging.String(logging.FieldErrorHint, "run selectors check"),
		logging.Float64("duration_seconds", 184.5),
	)

	if got := strings.Count(buf.String(), `"`+logging.FieldErrorHint+`"`); got != 1 {
		t.Fatalf("expected a single error hint, got %d in %s", got, buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry[logging.FieldErrorHint] != "run selectors check" {
		t.Fatalf("error_hint = %v", entry[logging.FieldErrorHint])
	}
	if entry[logging.FieldEventType] != "job_failed" {
		t.Fatalf("event_type = %v", entry[logging.FieldEventType])
	}
	if entry["duration_seconds"] != 184.5 {
		t.Fatalf("duration_seconds = %v", entry["duration_seconds"])
	}
}
