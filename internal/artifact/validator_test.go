package artifact_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"songfactory/internal/artifact"
	"songfactory/internal/testsupport"
)

func writeBytes(t *testing.T, path string, header []byte, size int) {
	t.Helper()
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	copy(buf, header)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestValidatorRejectsMissingAndSmallFiles(t *testing.T) {
	dir := t.TempDir()
	v := artifact.NewValidator(artifact.DefaultMinBytes)

	report := v.Validate(filepath.Join(dir, "missing.mp3"))
	if report.Valid || len(report.Errors) != 1 || report.Errors[0] != "file does not exist" {
		t.Fatalf("unexpected report for missing file: %#v", report)
	}

	empty := filepath.Join(dir, "empty.mp3")
	testsupport.WriteFile(t, empty, 0)
	report = v.Validate(empty)
	if report.Valid || report.Errors[0] != "file too small (0 bytes, minimum 10240)" {
		t.Fatalf("unexpected report for empty file: %#v", report)
	}

	small := filepath.Join(dir, "small.mp3")
	writeBytes(t, small, testsupport.MP3Header(), 10239)
	report = v.Validate(small)
	if report.Valid || !strings.Contains(report.Errors[0], "10239 bytes") {
		t.Fatalf("unexpected report for short file: %#v", report)
	}
	if report.Size != 10239 {
		t.Fatalf("expected size to be reported, got %d", report.Size)
	}
}

func TestValidatorRecognizesSignatures(t *testing.T) {
	dir := t.TempDir()
	v := artifact.NewValidator(0)

	cases := []struct {
		name   string
		header []byte
		format string
	}{
		{"mpeg frame", []byte{0xFF, 0xFB, 0x90, 0x64}, "mp3"},
		{"mpeg frame alt", []byte{0xFF, 0xE3, 0x00, 0x00}, "mp3"},
		{"id3", []byte("ID3\x04"), "mp3/id3"},
		{"wav", []byte("RIFF"), "wav"},
		{"ogg", []byte("OggS"), "ogg"},
		{"flac", []byte("fLaC"), "flac"},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, tc.name)
		writeBytes(t, path, tc.header, 10240)
		report := v.Validate(path)
		if !report.Valid || report.Format != tc.format {
			t.Fatalf("%s: expected valid %s, got %#v", tc.name, tc.format, report)
		}
	}
}

func TestValidatorRejectsMarkupAndUnknownHeaders(t *testing.T) {
	dir := t.TempDir()
	v := artifact.NewValidator(artifact.DefaultMinBytes)

	for _, prefix := range []string{"<html>", `{"error":"denied"}`, "[1,2,3]"} {
		path := filepath.Join(dir, "markup")
		writeBytes(t, path, []byte(prefix), 20480)
		report := v.Validate(path)
		if report.Valid || report.Errors[0] != "file appears to be text/markup, not audio" {
			t.Fatalf("%q: unexpected report %#v", prefix, report)
		}
	}

	path := filepath.Join(dir, "zeros")
	writeBytes(t, path, []byte{0x00, 0x01, 0x02, 0x03}, 20480)
	report := v.Validate(path)
	if report.Valid || report.Errors[0] != "unrecognized audio header: 00010203" {
		t.Fatalf("unexpected report for unknown header: %#v", report)
	}
}
