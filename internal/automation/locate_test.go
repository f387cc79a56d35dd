package automation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"songfactory/internal/selectors"
)

func TestIsXPathAcceptsRelativeExpressions(t *testing.T) {
	assert.True(t, isXPath(`//button`))
	assert.True(t, isXPath(`(//div)[2]`))
	assert.True(t, isXPath(`.//button[last()]`))
	assert.False(t, isXPath(`.menu-button`))
	assert.False(t, isXPath(`button[aria-haspopup="menu"]`))
}

func TestScopedOutcomePromotesWinnerAndDemotesEarlierMisses(t *testing.T) {
	candidates := selectors.Defaults()[selectors.GroupCardMenuButton]
	if !assert.GreaterOrEqual(t, len(candidates), 2) {
		return
	}

	winner, misses, ok := scopedOutcome(candidates, 1)
	assert.True(t, ok)
	assert.Equal(t, candidates[1], winner)
	assert.Equal(t, candidates[:1], misses)

	winner, misses, ok = scopedOutcome(candidates, 0)
	assert.True(t, ok)
	assert.Equal(t, candidates[0], winner)
	assert.Empty(t, misses)

	for _, result := range []int{-1, -2, len(candidates)} {
		_, _, ok = scopedOutcome(candidates, result)
		assert.False(t, ok, "result %d", result)
	}
}

func TestScopedMarkScriptSearchesInsideTheCard(t *testing.T) {
	candidates := []string{`button[aria-haspopup="menu"]`, `.//button[last()]`}
	script := scopedMarkScript(`[data-name="ProjectItem"]`, 3, candidates, menuMarker)

	assert.Contains(t, script, `const scope = nodes[3];`)
	assert.Contains(t, script, `scope.querySelector(candidates[i])`)
	assert.Contains(t, script, `document.evaluate(candidates[i], scope,`)
	assert.Contains(t, script, `button[aria-haspopup=\"menu\"]`)
	assert.Contains(t, script, `.//button[last()]`)
	assert.Equal(t, 3, strings.Count(script, menuMarker), "stale markers are cleared before the winner is marked")
	assert.NotContains(t, script, "buttons.length - 1", "the menu button comes from the registry")
}

func TestCardMenuButtonIsARegisteredGroup(t *testing.T) {
	candidates, ok := selectors.Defaults()[selectors.GroupCardMenuButton]
	assert.True(t, ok)
	assert.NotEmpty(t, candidates)

	var checked bool
	for _, check := range DefaultChecks(Options{SiteURL: "https://example.test/"}) {
		if check.Group == selectors.GroupCardMenuButton {
			checked = true
		}
	}
	assert.True(t, checked, "selectors check covers the card menu button")
}
