package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"songfactory/internal/logging"
	"songfactory/internal/services"
)

// isXPath reports whether a registry entry is an XPath expression. Entries
// starting with ".//" are relative to a scope element.
func isXPath(selector string) bool {
	for _, prefix := range []string{"//", "(//", ".//", "(.//"} {
		if strings.HasPrefix(selector, prefix) {
			return true
		}
	}
	return false
}

func queryOption(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Locate returns the first visible candidate of group. The winner is
// promoted and candidates tried before it are demoted. When none is visible
// a screenshot is taken and selector_not_found returned.
func (d *Driver) Locate(ctx context.Context, group string) (string, error) {
	selector, err := d.tryLocate(ctx, group)
	if err == nil || ctx.Err() != nil || services.KindOf(err) != services.KindSelectorNotFound {
		return selector, err
	}
	return "", d.exhausted(ctx, group, err)
}

// exhausted records a screenshot for a group with no visible candidate and
// names it in the returned error.
func (d *Driver) exhausted(ctx context.Context, group string, err error) error {
	shot := d.Screenshot(ctx, "selector_"+group)
	logging.ErrorWithContext(d.logger, "selector group exhausted", "selector_not_found",
		logging.String("group", group),
		logging.String("screenshot", shot),
		logging.String(logging.FieldErrorHint, "inspect the screenshot and update the group with songfactory selectors reset"),
	)
	if shot == "" {
		return err
	}
	return fmt.Errorf("%w (screenshot %s)", err, shot)
}

// resolved promotes the winning candidate of group and demotes the ones
// tried before it.
func (d *Driver) resolved(group, selector string, failed []string) {
	if err := d.registry.Promote(group, selector); err != nil {
		logging.WarnWithContext(d.logger, "selector promote not saved", "selector_registry_save_failed",
			logging.String("group", group), logging.Error(err))
	}
	for _, miss := range failed {
		if err := d.registry.Demote(group, miss); err != nil {
			logging.WarnWithContext(d.logger, "selector demote not saved", "selector_registry_save_failed",
				logging.String("group", group), logging.Error(err))
		}
	}
	d.logger.Debug("selector resolved",
		logging.String("group", group),
		logging.String("selector", selector),
		logging.Int("misses", len(failed)),
	)
}

func (d *Driver) tryLocate(ctx context.Context, group string) (string, error) {
	if _, err := d.ensureBrowser(); err != nil {
		return "", err
	}
	candidates := d.registry.Selectors(group)
	var failed []string
	for _, selector := range candidates {
		err := d.run(ctx, d.opts.ElementTimeout, chromedp.WaitVisible(selector, queryOption(selector)))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			failed = append(failed, selector)
			continue
		}
		d.resolved(group, selector, failed)
		return selector, nil
	}
	return "", services.Wrap(services.ErrSelectorNotFound, "automation", "locate",
		fmt.Sprintf("group %s: none of %d candidates visible", group, len(candidates)), nil)
}

// LocateWithin resolves group inside the scope-th element matched by
// scopeSelector and marks the winner with marker="1" for a later click. The
// registry is updated the same way Locate updates it.
func (d *Driver) LocateWithin(ctx context.Context, group, scopeSelector string, scope int, marker string) (string, error) {
	candidates := d.registry.Selectors(group)
	var winner int
	script := scopedMarkScript(scopeSelector, scope, candidates, marker)
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Evaluate(script, &winner)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrService, "automation", "locate", "group "+group, err)
	}
	selector, failed, ok := scopedOutcome(candidates, winner)
	if !ok {
		err := services.Wrap(services.ErrSelectorNotFound, "automation", "locate",
			fmt.Sprintf("group %s: none of %d candidates inside the matched element", group, len(candidates)), nil)
		return "", d.exhausted(ctx, group, err)
	}
	d.resolved(group, selector, failed)
	return selector, nil
}

// scopedMarkScript returns the index of the first candidate found inside the
// scope element after marking it, -1 when none matches and -2 when the scope
// element is gone.
func scopedMarkScript(scopeSelector string, scope int, candidates []string, marker string) string {
	quoted, _ := json.Marshal(candidates)
	return nodesScript(scopeSelector, fmt.Sprintf(`
  document.querySelectorAll("[%[1]s]").forEach(el => el.removeAttribute("%[1]s"));
  const scope = nodes[%[2]d];
  if (!scope) return -2;
  scope.scrollIntoView({block: "center"});
  scope.dispatchEvent(new MouseEvent("mouseover", {bubbles: true}));
  const candidates = %[3]s;
  const xpath = s => ["//", "(//", ".//", "(.//"].some(p => s.startsWith(p));
  for (let i = 0; i < candidates.length; i++) {
    let el = null;
    try {
      el = xpath(candidates[i])
        ? document.evaluate(candidates[i], scope, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
        : scope.querySelector(candidates[i]);
    } catch (e) {
      el = null;
    }
    if (el) {
      el.setAttribute("%[1]s", "1");
      return i;
    }
  }
  return -1;`, marker, scope, quoted))
}

// scopedOutcome maps the script result to the winning candidate and the
// misses tried before it.
func scopedOutcome(candidates []string, winner int) (string, []string, bool) {
	if winner < 0 || winner >= len(candidates) {
		return "", nil, false
	}
	return candidates[winner], candidates[:winner], true
}

func (d *Driver) click(ctx context.Context, group string) error {
	selector, err := d.Locate(ctx, group)
	if err != nil {
		return err
	}
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Click(selector, queryOption(selector))); err != nil {
		return services.Wrap(services.ErrService, "automation", "click", group, err)
	}
	return nil
}

// fill replaces the content of a text field. InsertText fires the input
// events the site's React state listens for.
func (d *Driver) fill(ctx context.Context, group, text string) error {
	selector, err := d.Locate(ctx, group)
	if err != nil {
		return err
	}
	opt := queryOption(selector)
	if err := d.run(ctx, d.opts.PageLoadTimeout,
		chromedp.SetValue(selector, "", opt),
		chromedp.Click(selector, opt),
		input.InsertText(text),
	); err != nil {
		return services.Wrap(services.ErrService, "automation", "fill", group, err)
	}
	return nil
}

// nodesScript prefixes a script with a helper resolving CSS or XPath
// selectors to an element array.
func nodesScript(selector, body string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
  const sel = %s;
  const nodes = [];
  if (sel.startsWith("//") || sel.startsWith("(//")) {
    const snap = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (let i = 0; i < snap.snapshotLength; i++) nodes.push(snap.snapshotItem(i));
  } else {
    nodes.push(...document.querySelectorAll(sel));
  }
  %s
})()`, quoted, body)
}

func (d *Driver) exists(ctx context.Context, selector string) bool {
	var found bool
	err := d.run(ctx, d.opts.ElementTimeout, chromedp.Evaluate(nodesScript(selector, "return nodes.length > 0;"), &found))
	return err == nil && found
}
