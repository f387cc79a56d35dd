package automation

import (
	"fmt"
	"strings"

	"songfactory/internal/selectors"
)

// Check names one selector group to look for on one page.
type Check struct {
	Name  string
	URL   string
	Group string
}

// CheckResult is the outcome of one Check.
type CheckResult struct {
	Check
	Selector string
	OK       bool
	Error    string
}

// HealthReport aggregates selector checks.
type HealthReport struct {
	Results []CheckResult
}

// Passed counts successful checks.
func (r HealthReport) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.OK {
			n++
		}
	}
	return n
}

// Failed counts failed checks.
func (r HealthReport) Failed() int {
	return len(r.Results) - r.Passed()
}

// Summary renders the report as PASS/FAIL lines.
func (r HealthReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Selector health check: %d/%d passed\n", r.Passed(), len(r.Results))
	for _, res := range r.Results {
		status := "PASS"
		if !res.OK {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s", status, res.Name)
		if res.Selector != "" {
			fmt.Fprintf(&b, " (%s)", res.Selector)
		}
		b.WriteByte('\n')
		if res.Error != "" {
			fmt.Fprintf(&b, "         %s\n", res.Error)
		}
	}
	return b.String()
}

// DefaultChecks covers the groups reachable without a song in progress.
func DefaultChecks(opts Options) []Check {
	opts = opts.withDefaults()
	music := opts.MusicURL()
	return []Check{
		{Name: "Prompt textarea", URL: music, Group: selectors.GroupPromptTextarea},
		{Name: "Lyrics toggle", URL: music, Group: selectors.GroupLyricsToggle},
		{Name: "Generate button", URL: music, Group: selectors.GroupGenerateButton},
		{Name: "Home link", URL: opts.SiteURL, Group: selectors.GroupHomeLink},
		{Name: "Song cards", URL: opts.SiteURL, Group: selectors.GroupSongCard},
		{Name: "Card menu button", URL: opts.SiteURL, Group: selectors.GroupCardMenuButton},
	}
}
