package automation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenshotsRotateOldestFirst(t *testing.T) {
	dir := t.TempDir()
	shots := NewScreenshots(dir, 3)
	base := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	tick := 0
	shots.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var paths []string
	for i := 0; i < 5; i++ {
		path, err := shots.Next("Submit No Job!")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
		paths = append(paths, path)
	}

	remaining, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])
	assert.FileExists(t, paths[4])
	assert.True(t, strings.HasSuffix(paths[4], "_submit_no_job.png"), paths[4])
}
