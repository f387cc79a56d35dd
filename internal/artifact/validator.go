package artifact

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// DefaultMinBytes is the smallest file accepted as audio.
const DefaultMinBytes int64 = 10240

const headerLen = 4

// Report is the outcome of validating one file.
type Report struct {
	Valid  bool
	Format string
	Size   int64
	Errors []string
}

// Validator checks that a file looks like real audio.
type Validator struct {
	MinBytes int64
}

// NewValidator returns a Validator with the given minimum size. Values <= 0
// fall back to DefaultMinBytes.
func NewValidator(minBytes int64) *Validator {
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}
	return &Validator{MinBytes: minBytes}
}

// Validate inspects the file at path.
func (v *Validator) Validate(path string) Report {
	minBytes := v.MinBytes
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Report{Errors: []string{"file does not exist"}}
	}
	if err != nil {
		return Report{Errors: []string{fmt.Sprintf("stat file: %v", err)}}
	}

	report := Report{Size: info.Size()}
	if report.Size < minBytes {
		report.Errors = append(report.Errors,
			fmt.Sprintf("file too small (%d bytes, minimum %d)", report.Size, minBytes))
		return report
	}

	header, err := readHeader(path)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("read header: %v", err))
		return report
	}

	format, reason := classifyHeader(header)
	if reason != "" {
		report.Errors = append(report.Errors, reason)
		return report
	}
	report.Format = format
	report.Valid = true
	return report
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, headerLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

func classifyHeader(header []byte) (string, string) {
	switch {
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return "mp3", ""
	case bytes.HasPrefix(header, []byte("ID3")):
		return "mp3/id3", ""
	case bytes.HasPrefix(header, []byte("RIFF")):
		return "wav", ""
	case bytes.HasPrefix(header, []byte("OggS")):
		return "ogg", ""
	case bytes.HasPrefix(header, []byte("fLaC")):
		return "flac", ""
	case len(header) > 0 && (header[0] == '<' || header[0] == '{' || header[0] == '['):
		return "", "file appears to be text/markup, not audio"
	default:
		return "", "unrecognized audio header: " + hex.EncodeToString(header)
	}
}
