package history_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songfactory/internal/history"
	"songfactory/internal/logging"
)

const profileCards = `<html><body>
<div data-project-id="J-100"><h6> Midnight   Run </h6><audio><source src="https://cdn.example.test/J-100.mp3"></audio></div>
<div data-project-id="J-101"><span>No heading card</span></div>
</body></html>`

const profileTable = `<html><body><div data-name="ProjectTable">
<h6>First Light</h6><h6>  </h6><h6>Second Wind</h6>
</div></body></html>`

func TestParseProfileHTMLCards(t *testing.T) {
	items, err := history.ParseProfileHTML(profileCards)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, history.Item{JobID: "J-100", Title: "Midnight Run", AudioURL: "https://cdn.example.test/J-100.mp3"}, items[0])
	assert.Equal(t, "No heading card", items[1].Title)
	assert.Empty(t, items[1].AudioURL)
}

func TestParseProfileHTMLFallsBackToTable(t *testing.T) {
	items, err := history.ParseProfileHTML(profileTable)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "First Light", items[0].Title)
	assert.Equal(t, "Second Wind", items[1].Title)
	assert.Empty(t, items[0].JobID)
}

// scriptedLoader hands out one page per load until visit declines.
type scriptedLoader struct {
	pages []string
	loads int
}

func (s *scriptedLoader) LoadPages(_ context.Context, _ string, maxClicks int, visit func(string) bool) error {
	for i := 0; i <= maxClicks && i < len(s.pages); i++ {
		s.loads++
		if !visit(s.pages[i]) {
			return nil
		}
	}
	return nil
}

func TestProfileSourceStopsAfterStaleLoads(t *testing.T) {
	loader := &scriptedLoader{pages: []string{profileCards, profileCards, profileCards, profileCards}}
	source := history.NewProfileSource(loader, "https://example.test/profile/me", 10, 2, logging.NewNop())

	seen := map[string]bool{}
	var emitted []string
	err := source.Discover(context.Background(), nil, func(item history.Item) bool {
		if seen[item.JobID] {
			return false
		}
		seen[item.JobID] = true
		emitted = append(emitted, item.JobID)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"J-100", "J-101"}, emitted)
	assert.Equal(t, 3, loader.loads)
}
