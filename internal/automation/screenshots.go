package automation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"songfactory/internal/textutil"
)

// DefaultMaxScreenshots bounds how many debug screenshots are kept.
const DefaultMaxScreenshots = 20

// Screenshots allocates rotated screenshot paths in one directory.
type Screenshots struct {
	dir string
	max int
	now func() time.Time
}

// NewScreenshots returns a rotation policy for dir keeping at most max files.
func NewScreenshots(dir string, max int) *Screenshots {
	if max <= 0 {
		max = DefaultMaxScreenshots
	}
	return &Screenshots{dir: dir, max: max, now: time.Now}
}

// Next removes the oldest screenshots so one more fits under the limit and
// returns the path for a new screenshot labelled name.
func (s *Screenshots) Next(name string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	existing, err := filepath.Glob(filepath.Join(s.dir, "*.png"))
	if err != nil {
		return "", fmt.Errorf("list screenshots: %w", err)
	}
	sort.Strings(existing)
	for len(existing) >= s.max {
		_ = os.Remove(existing[0])
		existing = existing[1:]
	}
	filename := fmt.Sprintf("%s_%s.png", s.now().Format("20060102_150405.000"), textutil.SanitizeToken(name))
	return filepath.Join(s.dir, filename), nil
}
