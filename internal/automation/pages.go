package automation

import (
	"context"

	"github.com/chromedp/chromedp"

	"songfactory/internal/logging"
	"songfactory/internal/selectors"
	"songfactory/internal/services"
)

// LoadPages opens url and hands the page HTML to visit, then clicks the
// "Load More" button and repeats. It stops when visit returns false, the
// button disappears or maxClicks clicks have been made.
func (d *Driver) LoadPages(ctx context.Context, url string, maxClicks int, visit func(html string) bool) error {
	if _, err := d.navigate(ctx, url); err != nil {
		return err
	}
	if err := sleepContext(ctx, settleDelay); err != nil {
		return err
	}
	for clicks := 0; ; clicks++ {
		var html string
		if err := d.run(ctx, d.opts.PageLoadTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return services.Wrap(services.ErrService, "automation", "load pages", "read page html", err)
		}
		if !visit(html) || clicks >= maxClicks {
			return nil
		}
		selector, err := d.tryLocate(ctx, selectors.GroupLoadMore)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Debug("no more pages", logging.Int("clicks", clicks))
			return nil
		}
		if err := d.run(ctx, d.opts.PageLoadTimeout,
			chromedp.Click(selector, queryOption(selector)),
			chromedp.Sleep(settleDelay),
		); err != nil {
			return services.Wrap(services.ErrService, "automation", "load pages", "click load more", err)
		}
	}
}
