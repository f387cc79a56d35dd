package automation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"songfactory/internal/selectors"
)

func TestHealthReportSummary(t *testing.T) {
	report := HealthReport{Results: []CheckResult{
		{Check: Check{Name: "Prompt textarea"}, Selector: `textarea[maxlength="500"]`, OK: true},
		{Check: Check{Name: "Generate button"}, Error: "no candidate of generate_button present"},
	}}
	assert.Equal(t, 1, report.Passed())
	assert.Equal(t, 1, report.Failed())

	summary := report.Summary()
	assert.True(t, strings.HasPrefix(summary, "Selector health check: 1/2 passed"))
	assert.Contains(t, summary, "[PASS] Prompt textarea")
	assert.Contains(t, summary, "[FAIL] Generate button")
	assert.Contains(t, summary, "no candidate of generate_button present")
}

func TestDefaultChecksUseSiteURLs(t *testing.T) {
	checks := DefaultChecks(Options{SiteURL: "https://example.test/"})
	assert.NotEmpty(t, checks)
	assert.Equal(t, "https://example.test/music", checks[0].URL)
	assert.Equal(t, selectors.GroupPromptTextarea, checks[0].Group)
	for _, check := range checks {
		_, known := selectors.Defaults()[check.Group]
		assert.True(t, known, "check %s uses unknown group %s", check.Name, check.Group)
	}
}
