package automation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"songfactory/internal/artifact"
	"songfactory/internal/logging"
	"songfactory/internal/selectors"
	"songfactory/internal/services"
)

const menuMarker = "data-songfactory-menu"

// goHome opens the home page through the home link, or directly when the
// link cannot be found.
func (d *Driver) goHome(ctx context.Context) error {
	if selector, err := d.tryLocate(ctx, selectors.GroupHomeLink); err == nil {
		if err := d.run(ctx, d.opts.PageLoadTimeout,
			chromedp.Click(selector, queryOption(selector)),
			chromedp.Sleep(settleDelay),
		); err == nil {
			return nil
		}
	} else if ctx.Err() != nil {
		return ctx.Err()
	}
	_, err := d.navigate(ctx, d.opts.SiteURL)
	return err
}

// MenuDownload downloads one rendition through a song card's menu:
// Download, then the rendition's "Full Song" entry.
func (d *Driver) MenuDownload(ctx context.Context, jobID, title string, rendition int) (artifact.BrowserDownload, error) {
	if rendition < 1 {
		rendition = 1
	}
	logger := logging.WithContext(ctx, d.logger)
	if err := d.goHome(ctx); err != nil {
		return nil, err
	}
	cardSelector, err := d.Locate(ctx, selectors.GroupSongCard)
	if err != nil {
		return nil, err
	}

	var cards []Card
	listCards := nodesScript(cardSelector, `return nodes.map(n => ({projectId: n.getAttribute("data-project-id") || "", text: n.innerText || ""}));`)
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Evaluate(listCards, &cards)); err != nil {
		return nil, services.Wrap(services.ErrService, "automation", "menu download", "list song cards", err)
	}
	index, how := MatchCard(cards, jobID, title)
	if index < 0 {
		shot := d.Screenshot(ctx, "download_card_not_found")
		return nil, services.Wrap(services.ErrNoArtifactResolved, "automation", "menu download",
			fmt.Sprintf("no song card matches %q among %d (screenshot %s)", title, len(cards), shot), nil)
	}
	logger.Info("song card matched",
		logging.Int("card_index", index),
		logging.String("strategy", how),
		logging.String("project_id", cards[index].ProjectID),
	)

	if _, err := d.LocateWithin(ctx, selectors.GroupCardMenuButton, cardSelector, index, menuMarker); err != nil {
		return nil, err
	}
	if err := d.run(ctx, d.opts.ElementTimeout,
		chromedp.Click(fmt.Sprintf(`[%s="1"]`, menuMarker), chromedp.ByQuery),
		chromedp.Sleep(settleDelay/2),
	); err != nil {
		return nil, services.Wrap(services.ErrService, "automation", "menu download", "open card menu", err)
	}
	if err := d.click(ctx, selectors.GroupMenuDownload); err != nil {
		d.escape(ctx)
		return nil, err
	}
	entrySelector, err := d.Locate(ctx, selectors.GroupMenuFullSong)
	if err != nil {
		d.escape(ctx)
		return nil, err
	}
	var entries []*cdp.Node
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Nodes(entrySelector, &entries, queryOption(entrySelector))); err != nil {
		d.escape(ctx)
		return nil, services.Wrap(services.ErrService, "automation", "menu download", "list rendition entries", err)
	}
	if len(entries) < rendition {
		d.escape(ctx)
		return nil, services.Wrap(services.ErrNoArtifactResolved, "automation", "menu download",
			fmt.Sprintf("rendition %d not offered (%d entries)", rendition, len(entries)), nil)
	}

	done := d.downloads.arm()
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.MouseClickNode(entries[rendition-1])); err != nil {
		d.downloads.disarm()
		return nil, services.Wrap(services.ErrService, "automation", "menu download", "click rendition entry", err)
	}
	timer := time.NewTimer(d.opts.DownloadTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		guid, suggested := d.downloads.disarm()
		if err != nil {
			return nil, services.Wrap(services.ErrNetwork, "automation", "menu download", "browser download", err)
		}
		logger.Info("browser download finished",
			logging.Int("rendition", rendition),
			logging.String("suggested_filename", suggested),
		)
		return &fileDownload{path: filepath.Join(d.opts.DownloadDir, guid), suggested: suggested}, nil
	case <-timer.C:
		d.downloads.disarm()
		return nil, services.Wrap(services.ErrTimeout, "automation", "menu download",
			fmt.Sprintf("download did not finish within %s", d.opts.DownloadTimeout), nil)
	case <-ctx.Done():
		d.downloads.disarm()
		return nil, ctx.Err()
	}
}

func (d *Driver) escape(ctx context.Context) {
	_ = d.run(ctx, d.opts.ElementTimeout, chromedp.KeyEvent(kb.Escape))
}
