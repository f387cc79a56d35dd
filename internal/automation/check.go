package automation

import (
	"context"
	"fmt"

	"songfactory/internal/logging"
)

// CheckSelectors visits each check's page and reports whether any candidate
// of its group is present. It never mutates the registry.
func (d *Driver) CheckSelectors(ctx context.Context, checks []Check) HealthReport {
	var report HealthReport
	visited := ""
	for _, check := range checks {
		result := CheckResult{Check: check}
		if check.URL != visited {
			if _, err := d.navigate(ctx, check.URL); err != nil {
				result.Error = err.Error()
				report.Results = append(report.Results, result)
				continue
			}
			if err := sleepContext(ctx, 2*settleDelay); err != nil {
				result.Error = err.Error()
				report.Results = append(report.Results, result)
				return report
			}
			visited = check.URL
		}
		for _, selector := range d.registry.Selectors(check.Group) {
			if d.exists(ctx, selector) {
				result.OK = true
				result.Selector = selector
				break
			}
		}
		if !result.OK {
			result.Error = fmt.Sprintf("no candidate of %s present", check.Group)
		}
		d.logger.Info("selector check",
			logging.String("check", check.Name),
			logging.Bool("ok", result.OK),
			logging.String("selector", result.Selector),
		)
		report.Results = append(report.Results, result)
	}
	return report
}
