package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"songfactory/internal/logging"
	"songfactory/internal/services"
)

// fetchFreshScript queries the status endpoint from inside the page so the
// site's cookies and the captured token apply. It tries the job id first,
// then both conversion ids.
const fetchFreshScript = `(async (args) => {
  const headers = {};
  if (args.token) headers["Authorization"] = args.token;
  const get = async (query) => {
    try {
      const resp = await fetch(args.base + "/byId?conversionType=MUSIC_AI&" + query, { headers, credentials: "include" });
      if (!resp.ok) return null;
      const data = await resp.json();
      return data && data.success !== false ? data : null;
    } catch (e) {
      return null;
    }
  };
  if (args.jobId) {
    const data = await get("task_id=" + encodeURIComponent(args.jobId));
    if (data) return { source: "job_id", data: data };
  }
  if (args.cid1) {
    const data = await get("conversion_id=" + encodeURIComponent(args.cid1));
    if (data) {
      const data2 = args.cid2 ? await get("conversion_id=" + encodeURIComponent(args.cid2)) : null;
      return { source: "conversion_id", data: data, data2: data2 };
    }
  }
  return { source: "" };
})(%s)`

type freshArgs struct {
	Base  string `json:"base"`
	Token string `json:"token"`
	JobID string `json:"jobId"`
	CID1  string `json:"cid1"`
	CID2  string `json:"cid2"`
}

type freshResult struct {
	Source string         `json:"source"`
	Data   map[string]any `json:"data"`
	Data2  map[string]any `json:"data2"`
}

// FetchFresh re-queries the status endpoint for a captured job. The second
// document is only present when the lookup went by conversion id, in which
// case it describes rendition 2.
func (d *Driver) FetchFresh(ctx context.Context, capture Capture) (map[string]any, map[string]any, error) {
	args, err := json.Marshal(freshArgs{
		Base:  d.opts.APIBase,
		Token: capture.AuthToken,
		JobID: strings.TrimSpace(capture.JobID),
		CID1:  strings.TrimSpace(capture.ConversionIDs[0]),
		CID2:  strings.TrimSpace(capture.ConversionIDs[1]),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode fetch args: %w", err)
	}
	var result freshResult
	err = d.run(ctx, d.opts.PageLoadTimeout,
		chromedp.Evaluate(fmt.Sprintf(fetchFreshScript, args), &result, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, services.Wrap(services.ErrNetwork, "automation", "fetch fresh", "evaluate status fetch", err)
	}
	if result.Source == "" || result.Data == nil {
		return nil, nil, services.Wrap(services.ErrService, "automation", "fetch fresh", "status endpoint returned nothing usable", nil)
	}
	logging.WithContext(ctx, d.logger).Info("fresh status fetched",
		logging.String("source", result.Source),
		logging.Bool("second_rendition_doc", result.Data2 != nil),
	)
	return result.Data, result.Data2, nil
}
