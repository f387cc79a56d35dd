package history

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"songfactory/internal/logging"
	"songfactory/internal/services"
)

// PageLoader loads a page and keeps clicking "Load More" while visit asks for
// more.
type PageLoader interface {
	LoadPages(ctx context.Context, url string, maxClicks int, visit func(html string) bool) error
}

// ProfileSource reads the public profile page through the browser.
type ProfileSource struct {
	loader     PageLoader
	url        string
	maxClicks  int
	staleLimit int
	logger     *slog.Logger
}

// NewProfileSource builds a profile source for profileURL.
func NewProfileSource(loader PageLoader, profileURL string, maxClicks, staleLimit int, logger *slog.Logger) *ProfileSource {
	if maxClicks <= 0 {
		maxClicks = 30
	}
	if staleLimit <= 0 {
		staleLimit = 3
	}
	return &ProfileSource{
		loader:     loader,
		url:        profileURL,
		maxClicks:  maxClicks,
		staleLimit: staleLimit,
		logger:     logging.NewComponentLogger(logger, "history-profile"),
	}
}

// Name implements Source.
func (p *ProfileSource) Name() string { return "profile" }

// Discover parses every loaded version of the page. Loading stops once
// staleLimit loads in a row add nothing new.
func (p *ProfileSource) Discover(ctx context.Context, stop func() bool, emit func(Item) bool) error {
	stale, loads := 0, 0
	var parseErr error
	err := p.loader.LoadPages(ctx, p.url, p.maxClicks, func(html string) bool {
		loads++
		items, err := ParseProfileHTML(html)
		if err != nil {
			parseErr = err
			return false
		}
		fresh := 0
		for _, item := range items {
			if emit(item) {
				fresh++
			}
		}
		if fresh == 0 {
			stale++
		} else {
			stale = 0
		}
		if stop != nil && stop() {
			return false
		}
		return stale < p.staleLimit
	})
	if err != nil {
		return err
	}
	if parseErr != nil {
		return services.Wrap(services.ErrService, "history", "profile", "parse page", parseErr)
	}
	if stop != nil && stop() {
		return services.ErrStopped
	}
	p.logger.Info("profile discovery finished", logging.Int("page_loads", loads))
	return nil
}

// ParseProfileHTML extracts song cards from a profile page. Cards carrying a
// data-project-id attribute yield job ids; otherwise the project table's
// headings give titles only.
func ParseProfileHTML(html string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var items []Item
	doc.Find("[data-project-id]").Each(func(_ int, card *goquery.Selection) {
		id, _ := card.Attr("data-project-id")
		items = append(items, Item{
			JobID:    strings.TrimSpace(id),
			Title:    cardTitle(card),
			AudioURL: audioSource(card),
		})
	})
	if len(items) > 0 {
		return items, nil
	}
	doc.Find("[data-name='ProjectTable'] h6").Each(func(_ int, heading *goquery.Selection) {
		if title := collapse(heading.Text()); title != "" {
			items = append(items, Item{Title: title})
		}
	})
	return items, nil
}

func cardTitle(card *goquery.Selection) string {
	if heading := card.Find("h6, h5, h4").First(); heading.Length() > 0 {
		if title := collapse(heading.Text()); title != "" {
			return title
		}
	}
	text := collapse(card.Text())
	if runes := []rune(text); len(runes) > 200 {
		text = string(runes[:200])
	}
	return text
}

func audioSource(card *goquery.Selection) string {
	src, _ := card.Find("audio source[src], audio[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
